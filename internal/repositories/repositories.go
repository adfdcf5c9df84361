package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/subcord/internal/services"
)

// AlbumRepository caches getAlbum results in SQLite for a bounded time.
//
// Implements tasks.AlbumCache.
type AlbumRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewAlbumRepository creates a repository whose entries stay fresh for ttl.
func NewAlbumRepository(db *sql.DB, ttl time.Duration) *AlbumRepository {
	return &AlbumRepository{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached album. ok is false when the album is unknown or older than the TTL.
func (r *AlbumRepository) Get(ctx context.Context, albumID string) (*services.Album, bool, error) {
	album := &services.Album{}
	var fetchedAt time.Time

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, artist, song_count, fetched_at FROM albums WHERE id = ?`, albumID,
	).Scan(&album.ID, &album.Name, &album.Artist, &album.SongCount, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get album: %w", err)
	}

	if r.now().Sub(fetchedAt) >= r.ttl {
		return nil, false, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT song_id, track, suffix, bit_rate, bit_depth, sampling_rate
		FROM album_songs
		WHERE album_id = ?
		ORDER BY position
	`, albumID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list album songs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s services.AlbumSong
		if err := rows.Scan(&s.ID, &s.Track, &s.Suffix, &s.BitRate, &s.BitDepth, &s.SamplingRate); err != nil {
			return nil, false, fmt.Errorf("failed to scan album song: %w", err)
		}
		album.Songs = append(album.Songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating album songs: %w", err)
	}

	return album, true, nil
}

// Put stores album and its songs, replacing any previous entry.
func (r *AlbumRepository) Put(ctx context.Context, album *services.Album) error {
	if album == nil || album.ID == "" {
		return fmt.Errorf("album id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, album.ID); err != nil {
		return fmt.Errorf("failed to replace album: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO albums (id, name, artist, song_count, fetched_at) VALUES (?, ?, ?, ?, ?)`,
		album.ID, album.Name, album.Artist, album.SongCount, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO album_songs (album_id, position, song_id, track, suffix, bit_rate, bit_depth, sampling_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare song insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range album.Songs {
		if _, err := stmt.ExecContext(ctx, album.ID, i, s.ID, s.Track, s.Suffix, s.BitRate, s.BitDepth, s.SamplingRate); err != nil {
			return fmt.Errorf("failed to insert album song: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit album: %w", err)
	}
	return nil
}

// Purge deletes entries older than the TTL and returns how many albums were removed.
func (r *AlbumRepository) Purge(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.ttl).UTC()

	result, err := r.db.ExecContext(ctx, `DELETE FROM albums WHERE fetched_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge albums: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
