package repositories

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenCache(shared.CacheConfig{Enabled: true, Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testAlbum() *services.Album {
	return &services.Album{
		ID:        "al1",
		Name:      "Kind of Blue",
		Artist:    "Miles Davis",
		SongCount: 3,
		Songs: []services.AlbumSong{
			{ID: "s1", Track: 1, Suffix: "flac", BitRate: 1100, BitDepth: 24, SamplingRate: 96000},
			{ID: "s2", Track: 2, Suffix: "flac", BitRate: 1050, BitDepth: 24, SamplingRate: 96000},
			{ID: "s3", Track: 3, Suffix: "mp3", BitRate: 320},
		},
	}
}

func TestAlbumRepository(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	newRepo := func(t *testing.T) (*AlbumRepository, *time.Time) {
		now := t0
		repo := NewAlbumRepository(setupTestDB(t), 10*time.Minute)
		repo.now = func() time.Time { return now }
		return repo, &now
	}

	t.Run("miss", func(t *testing.T) {
		repo, _ := newRepo(t)

		album, ok, err := repo.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ok || album != nil {
			t.Errorf("expected miss, got %+v", album)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		repo, _ := newRepo(t)

		if err := repo.Put(ctx, testAlbum()); err != nil {
			t.Fatalf("failed to put album: %v", err)
		}

		album, ok, err := repo.Get(ctx, "al1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !ok {
			t.Fatal("expected hit")
		}
		if album.Name != "Kind of Blue" || album.Artist != "Miles Davis" || album.SongCount != 3 {
			t.Errorf("unexpected album %+v", album)
		}
		if len(album.Songs) != 3 {
			t.Fatalf("expected 3 songs, got %d", len(album.Songs))
		}
		for i, id := range []string{"s1", "s2", "s3"} {
			if album.Songs[i].ID != id {
				t.Errorf("expected song %d to be %s, got %s", i, id, album.Songs[i].ID)
			}
		}
		if s := album.Songs[0]; s.BitDepth != 24 || s.SamplingRate != 96000 || s.Suffix != "flac" {
			t.Errorf("unexpected codec fields %+v", s)
		}
	})

	t.Run("expires after ttl", func(t *testing.T) {
		repo, now := newRepo(t)
		if err := repo.Put(ctx, testAlbum()); err != nil {
			t.Fatalf("failed to put album: %v", err)
		}

		*now = t0.Add(9 * time.Minute)
		if _, ok, _ := repo.Get(ctx, "al1"); !ok {
			t.Error("expected hit within ttl")
		}

		*now = t0.Add(10 * time.Minute)
		if _, ok, _ := repo.Get(ctx, "al1"); ok {
			t.Error("expected miss after ttl")
		}
	})

	t.Run("put replaces songs", func(t *testing.T) {
		repo, _ := newRepo(t)
		if err := repo.Put(ctx, testAlbum()); err != nil {
			t.Fatalf("failed to put album: %v", err)
		}

		updated := testAlbum()
		updated.Songs = updated.Songs[:1]
		updated.SongCount = 1
		if err := repo.Put(ctx, updated); err != nil {
			t.Fatalf("failed to replace album: %v", err)
		}

		album, _, err := repo.Get(ctx, "al1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(album.Songs) != 1 || album.SongCount != 1 {
			t.Errorf("expected replaced listing, got %+v", album)
		}
	})

	t.Run("put replaces songs on a pooled file cache", func(t *testing.T) {
		db, err := shared.OpenCache(shared.CacheConfig{
			Enabled:      true,
			Path:         filepath.Join(t.TempDir(), "cache.db"),
			MaxOpenConns: 4,
			MaxIdleConns: 4,
		})
		if err != nil {
			t.Fatalf("failed to open cache: %v", err)
		}
		t.Cleanup(func() { db.Close() })

		// Hold a connection so the puts run on others in the pool.
		held, err := db.Conn(ctx)
		if err != nil {
			t.Fatalf("failed to hold connection: %v", err)
		}
		defer held.Close()

		repo := NewAlbumRepository(db, time.Hour)
		for i := range 4 {
			if err := repo.Put(ctx, testAlbum()); err != nil {
				t.Fatalf("put %d failed: %v", i, err)
			}
		}

		album, ok, err := repo.Get(ctx, "al1")
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if len(album.Songs) != 3 {
			t.Errorf("expected 3 songs, got %d", len(album.Songs))
		}
	})

	t.Run("put requires id", func(t *testing.T) {
		repo, _ := newRepo(t)

		if err := repo.Put(ctx, &services.Album{}); err == nil {
			t.Error("expected error for album without id")
		}
	})

	t.Run("purge", func(t *testing.T) {
		repo, now := newRepo(t)
		if err := repo.Put(ctx, testAlbum()); err != nil {
			t.Fatalf("failed to put album: %v", err)
		}

		*now = t0.Add(5 * time.Minute)
		fresh := testAlbum()
		fresh.ID = "al2"
		if err := repo.Put(ctx, fresh); err != nil {
			t.Fatalf("failed to put album: %v", err)
		}

		*now = t0.Add(12 * time.Minute)
		n, err := repo.Purge(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged album, got %d", n)
		}

		var songs int
		if err := repo.db.QueryRow(`SELECT COUNT(*) FROM album_songs WHERE album_id = 'al1'`).Scan(&songs); err != nil {
			t.Fatalf("failed to count songs: %v", err)
		}
		if songs != 0 {
			t.Errorf("expected songs to cascade, got %d", songs)
		}
		if _, ok, _ := repo.Get(ctx, "al2"); !ok {
			t.Error("expected fresh album to survive purge")
		}
	})
}
