package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subcord/internal/models"
	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
)

// AlbumCache stores getAlbum results between cycles.
//
// Implementations decide freshness: Get reports a miss for stale entries.
type AlbumCache interface {
	Get(ctx context.Context, albumID string) (*services.Album, bool, error)
	Put(ctx context.Context, album *services.Album) error
}

// SnapshotFetcher builds a [models.TrackSnapshot] for the listener's current playback.
type SnapshotFetcher struct {
	upstream services.Upstream
	cache    AlbumCache
	logger   *log.Logger
}

// NewSnapshotFetcher creates a fetcher. cache and logger may be nil.
func NewSnapshotFetcher(upstream services.Upstream, cache AlbumCache, logger *log.Logger) *SnapshotFetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &SnapshotFetcher{upstream: upstream, cache: cache, logger: logger}
}

// Fetch returns what listener is playing, or nil when nothing is.
//
// When the upstream reports several sessions for the listener, the first one in server order wins.
func (f *SnapshotFetcher) Fetch(ctx context.Context, listener string) (*models.TrackSnapshot, error) {
	entries, err := f.upstream.GetNowPlaying(ctx)
	if err != nil {
		return nil, upstreamErr("now playing", err)
	}

	entry := firstForListener(entries, listener)
	if entry == nil {
		return nil, nil
	}

	snap := &models.TrackSnapshot{
		ID:          entry.ID,
		Title:       entry.Title,
		Artist:      entry.Artist,
		Album:       entry.Album,
		AlbumID:     entry.AlbumID,
		TrackNumber: 1,
		TotalTracks: 1,
		Duration:    entry.Duration,
		Codec:       models.Codec{Suffix: entry.Suffix, BitRate: entry.BitRate},
		Username:    entry.Username,
		PlayerName:  entry.PlayerName,
	}

	if !snap.HasAlbum() {
		return snap, nil
	}

	album, err := f.album(ctx, entry.AlbumID)
	switch {
	case errors.Is(err, shared.ErrAlbumNotFound):
		f.logger.Warn("album lookup found nothing", "album_id", entry.AlbumID, "track_id", entry.ID)
		return snap, nil
	case err != nil:
		return nil, upstreamErr("album", err)
	}

	enrich(snap, album)
	return snap, nil
}

func (f *SnapshotFetcher) album(ctx context.Context, albumID string) (*services.Album, error) {
	if f.cache != nil {
		album, ok, err := f.cache.Get(ctx, albumID)
		if err != nil {
			f.logger.Warn("album cache read failed", "album_id", albumID, "error", err)
		} else if ok {
			return album, nil
		}
	}

	album, err := f.upstream.GetAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, album); err != nil {
			f.logger.Warn("album cache write failed", "album_id", albumID, "error", err)
		}
	}
	return album, nil
}

func firstForListener(entries []services.NowPlayingEntry, listener string) *services.NowPlayingEntry {
	for i := range entries {
		if strings.EqualFold(entries[i].Username, listener) {
			return &entries[i]
		}
	}
	return nil
}

// enrich fills album artist, position, total and codec details from the album listing.
func enrich(snap *models.TrackSnapshot, album *services.Album) {
	snap.AlbumArtist = album.Artist
	if snap.Album == "" {
		snap.Album = album.Name
	}

	snap.TotalTracks = album.SongCount
	if snap.TotalTracks == 0 {
		snap.TotalTracks = len(album.Songs)
	}

	for i, song := range album.Songs {
		if song.ID != snap.ID {
			continue
		}
		snap.TrackNumber = i + 1
		if song.Suffix != "" {
			snap.Codec.Suffix = song.Suffix
		}
		if song.BitRate > 0 {
			snap.Codec.BitRate = song.BitRate
		}
		snap.Codec.BitDepth = song.BitDepth
		snap.Codec.SamplingRate = song.SamplingRate
		break
	}
}

func upstreamErr(op string, err error) error {
	if errors.Is(err, shared.ErrUpstream) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", shared.ErrUpstream, op, err)
}
