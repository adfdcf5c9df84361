// Package repositories implements SQLite persistence.
//
// [AlbumRepository] caches upstream album listings (metadata plus the ordered song list) so the
// presence loop does not call getAlbum on every cycle. Entries expire after a TTL and the database
// defaults to ":memory:", so nothing outlives the process.
package repositories
