package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
)

// fakeUpstream is a scriptable test double for [services.Upstream].
//
// NowPlaying results are consumed one per call; the last one repeats once the script runs out.
type fakeUpstream struct {
	mu sync.Mutex

	Info       *services.ServerInfo
	PingErr    error
	NowPlaying []nowPlayingStep
	Albums     map[string]*services.Album
	AlbumErr   error
	AlbumInfos map[string]*services.AlbumInfo
	InfoErr    error

	NowPlayingCalls int
	AlbumCalls      int
	AlbumInfoCalls  int
}

// nowPlayingStep is one scripted getNowPlaying answer.
type nowPlayingStep struct {
	Entries []services.NowPlayingEntry
	Err     error
}

func (f *fakeUpstream) Ping(ctx context.Context) (*services.ServerInfo, error) {
	if f.PingErr != nil {
		return nil, f.PingErr
	}
	if f.Info == nil {
		return &services.ServerInfo{Kind: "navidrome"}, nil
	}
	return f.Info, nil
}

func (f *fakeUpstream) GetNowPlaying(ctx context.Context) ([]services.NowPlayingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.NowPlayingCalls++
	if len(f.NowPlaying) == 0 {
		return nil, nil
	}
	step := f.NowPlaying[0]
	if len(f.NowPlaying) > 1 {
		f.NowPlaying = f.NowPlaying[1:]
	}
	return step.Entries, step.Err
}

func (f *fakeUpstream) GetAlbum(ctx context.Context, albumID string) (*services.Album, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AlbumCalls++
	if f.AlbumErr != nil {
		return nil, f.AlbumErr
	}
	if album, ok := f.Albums[albumID]; ok {
		return album, nil
	}
	return nil, fmt.Errorf("%w: %w: %s", shared.ErrUpstream, shared.ErrAlbumNotFound, albumID)
}

func (f *fakeUpstream) GetAlbumInfo(ctx context.Context, albumID string) (*services.AlbumInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AlbumInfoCalls++
	if f.InfoErr != nil {
		return nil, f.InfoErr
	}
	if info, ok := f.AlbumInfos[albumID]; ok {
		return info, nil
	}
	return &services.AlbumInfo{}, nil
}

