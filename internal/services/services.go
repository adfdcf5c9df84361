// package services defines clients for the HTTP APIs the presence engine talks to
//
// Subsonic (upstream playback source), plus a raw probe for artwork hosts
package services

import (
	"context"
)

// Upstream defines the playback source consumed by the presence engine.
//
// Every method fails with an error wrapping [shared.ErrUpstream].
type Upstream interface {
	// Ping checks connectivity and credentials and reports which server implementation answered.
	Ping(ctx context.Context) (*ServerInfo, error)

	// GetNowPlaying lists what every user of the server is currently playing, in server order.
	GetNowPlaying(ctx context.Context) ([]NowPlayingEntry, error)

	// GetAlbum retrieves an album with its ordered song list.
	GetAlbum(ctx context.Context, albumID string) (*Album, error)

	// GetAlbumInfo retrieves album artwork URLs.
	GetAlbumInfo(ctx context.Context, albumID string) (*AlbumInfo, error)
}

// ServerInfo describes the upstream server implementation.
type ServerInfo struct {
	Kind          string `json:"kind"`    // e.g. navidrome, gonic; "subsonic" when the server does not say
	Version       string `json:"version"` // Subsonic API version
	ServerVersion string `json:"serverVersion,omitempty"`
}

// NowPlayingEntry represents one active playback session.
type NowPlayingEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	AlbumID    string `json:"albumId"`
	Duration   int    `json:"duration"` // Duration in seconds
	Track      int    `json:"track"`
	Suffix     string `json:"suffix"`
	BitRate    int    `json:"bitRate"`
	CoverArt   string `json:"coverArt"`
	Username   string `json:"username"`
	PlayerName string `json:"playerName"`
	MinutesAgo int    `json:"minutesAgo"`
}

// AlbumSong is a song entry within an album listing.
type AlbumSong struct {
	ID           string `json:"id"`
	Track        int    `json:"track"`
	Suffix       string `json:"suffix"`
	BitRate      int    `json:"bitRate"`
	BitDepth     int    `json:"bitDepth"`
	SamplingRate int    `json:"samplingRate"`
}

// Album represents an album with its songs in server order.
type Album struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Artist    string      `json:"artist"`
	SongCount int         `json:"songCount"`
	Songs     []AlbumSong `json:"song"`
}

// AlbumInfo contains artwork URLs for an album.
type AlbumInfo struct {
	SmallImageURL  string `json:"smallImageUrl"`
	MediumImageURL string `json:"mediumImageUrl"`
	LargeImageURL  string `json:"largeImageUrl"`
}

// ImageURL returns the largest available image URL, or "".
func (a *AlbumInfo) ImageURL() string {
	if a == nil {
		return ""
	}
	for _, u := range []string{a.LargeImageURL, a.MediumImageURL, a.SmallImageURL} {
		if u != "" {
			return u
		}
	}
	return ""
}
