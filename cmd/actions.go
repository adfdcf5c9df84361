package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/subcord/internal/formatter"
	"github.com/desertthunder/subcord/internal/models"
	"github.com/desertthunder/subcord/internal/repositories"
	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
	"github.com/desertthunder/subcord/internal/tasks"
	"github.com/urfave/cli/v3"
)

const redacted = "********"

func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}
	return ctx, nil
}

// Run mirrors playback into Discord until SIGINT/SIGTERM or until Discord goes away.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := r.upstreamFor(cfg)
	logger := shared.WithLogger(r.logger, "component", "engine")

	var cache tasks.AlbumCache
	if cfg.Cache.Enabled {
		if repo, closeCache, err := r.openAlbumCache(ctx, cfg); err != nil {
			r.logger.Warn("album cache disabled", "error", err)
		} else {
			defer closeCache()
			cache = repo
		}
	}

	events := make(chan tasks.Event, 32)
	stats := &sessionStats{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			stats.record(ev)
		}
	}()

	engine := tasks.NewPresenceEngine(tasks.EngineOpts{
		Upstream: upstream,
		Fetcher:  tasks.NewSnapshotFetcher(upstream, cache, logger),
		Resolver: tasks.NewArtworkResolver(
			upstream,
			services.NewProbeService(nil),
			cfg.Presence.FallbackImageURL,
			cfg.Presence.NotFoundMarker,
			logger,
		),
		Sink:             r.sinkFor(cfg),
		Listener:         cfg.Subsonic.Listener,
		PollInterval:     cfg.Presence.PollInterval(),
		IdleInterval:     cfg.Presence.IdleInterval(),
		MinUpdateSpacing: cfg.Presence.MinUpdateSpacing(),
		SessionTimeout:   cfg.Presence.SessionTimeout(),
		RequestTimeout:   cfg.Subsonic.Timeout(),
		Events:           events,
		Logger:           logger,
	})

	r.logger.Info("starting presence sync", "listener", cfg.Subsonic.Listener, "server", cfg.Subsonic.URL)
	err = engine.Run(ctx)

	close(events)
	wg.Wait()
	r.logger.Info("presence sync stopped",
		"pushed", stats.pushed,
		"cleared", stats.cleared,
		"upstream_errors", stats.upstreamErrors,
		"sink_errors", stats.sinkErrors,
	)

	if err != nil {
		return fmt.Errorf("presence sync failed: %w", err)
	}
	return nil
}

func (r *Runner) openAlbumCache(ctx context.Context, cfg *shared.Config) (*repositories.AlbumRepository, func(), error) {
	db, err := shared.OpenCache(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	repo := repositories.NewAlbumRepository(db, cfg.Cache.TTL())
	if n, err := repo.Purge(ctx); err != nil {
		r.logger.Warn("failed to purge stale albums", "error", err)
	} else if n > 0 {
		r.logger.Debug("purged stale albums", "count", n)
	}

	return repo, func() { db.Close() }, nil
}

// Ping checks connectivity and credentials against the Subsonic server.
func (r *Runner) Ping(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	info, err := r.upstreamFor(cfg).Ping(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(info, true)
	}

	version := info.Version
	if info.ServerVersion != "" {
		version = fmt.Sprintf("%s, API %s", info.ServerVersion, info.Version)
	}
	return r.writePlain("%s %s (%s) at %s\n", r.palette.OK("✓"), info.Kind, version, cfg.Subsonic.URL)
}

type nowOutput struct {
	Listener string                `json:"listener"`
	Playing  bool                  `json:"playing"`
	Track    *models.TrackSnapshot `json:"track,omitempty"`
	Presence *models.Presence      `json:"presence,omitempty"`
}

// Now prints the listener's current track and the presence payload built for it.
func (r *Runner) Now(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	upstream := r.upstreamFor(cfg)
	listener := cfg.Subsonic.Listener

	snap, err := tasks.NewSnapshotFetcher(upstream, nil, r.logger).Fetch(ctx, listener)
	if err != nil {
		return err
	}

	if snap == nil {
		if cmd.Bool("json") {
			return r.writeJSON(nowOutput{Listener: listener}, cmd.Bool("pretty"))
		}
		return r.writePlain("%s\n", r.palette.Help(fmt.Sprintf("Nothing playing for %s", listener)))
	}

	kind := "subsonic"
	if info, err := upstream.Ping(ctx); err != nil {
		r.logger.Warn("ping failed, using default server kind", "error", err)
	} else if info.Kind != "" {
		kind = info.Kind
	}

	resolver := tasks.NewArtworkResolver(
		upstream,
		services.NewProbeService(nil),
		cfg.Presence.FallbackImageURL,
		cfg.Presence.NotFoundMarker,
		r.logger,
	)
	snap.ArtworkURL = resolver.Resolve(ctx, *snap)
	payload := formatter.Format(*snap, kind, time.Now(), snap.ArtworkURL)

	if cmd.Bool("json") {
		return r.writeJSON(nowOutput{Listener: listener, Playing: true, Track: snap, Presence: &payload}, cmd.Bool("pretty"))
	}
	return r.writePlain("%s\n", r.palette.Presence(*snap, payload))
}

// ConfigInit writes the example configuration to the --config path.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if cmd.Bool("force") {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to replace config file: %w", err)
		}
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	return r.writePlain("%s wrote %s\n", r.palette.OK("✓"), path)
}

// ConfigShow prints the effective configuration as TOML.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.Subsonic.Password != "" {
		shown.Subsonic.Password = redacted
	}

	if err := toml.NewEncoder(r.output).Encode(shown); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// sessionStats tallies engine events for the shutdown summary.
type sessionStats struct {
	pushed         int
	cleared        int
	upstreamErrors int
	sinkErrors     int
}

func (s *sessionStats) record(ev tasks.Event) {
	switch ev.Kind {
	case tasks.EventPushed:
		s.pushed++
	case tasks.EventCleared:
		s.cleared++
	case tasks.EventUpstreamError:
		s.upstreamErrors++
	case tasks.EventSinkError:
		s.sinkErrors++
	}
}
