package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/subcord/internal/formatter"
	"github.com/desertthunder/subcord/internal/models"
	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
)

const (
	defaultServerKind     = "subsonic"
	defaultSessionTimeout = 30 * time.Second
	defaultRequestTimeout = 10 * time.Second
	sessionCheckInterval  = time.Second
)

// Sink is the downstream presence surface.
type Sink interface {
	Connect(ctx context.Context) error
	Connected() bool
	Publish(ctx context.Context, p models.Presence) error
	ClearActivity(ctx context.Context) error
	Close() error
}

// EngineOpts configures a [PresenceEngine].
type EngineOpts struct {
	Upstream services.Upstream // Used for the server kind lookup
	Fetcher  *SnapshotFetcher
	Resolver *ArtworkResolver
	Sink     Sink
	Listener string

	PollInterval     time.Duration // Steady cadence, raised to MinUpdateSpacing when lower
	IdleInterval     time.Duration
	MinUpdateSpacing time.Duration // Minimum time between two sink calls; 0 disables the limiter
	SessionTimeout   time.Duration
	RequestTimeout   time.Duration // Bounds the upstream calls of one cycle

	Events chan<- Event // Optional, written without blocking
	Logger *log.Logger

	// Clock and Sleep replace the wall clock; tests use them to drive time.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// PresenceEngine mirrors the listener's playback into the presence sink.
//
// All state is owned by the goroutine calling [PresenceEngine.Run].
type PresenceEngine struct {
	upstream  services.Upstream
	fetcher   *SnapshotFetcher
	resolver  *ArtworkResolver
	sink      Sink
	listener  string
	intervals Intervals
	timeout   time.Duration
	requestTO time.Duration
	limiter   *rate.Limiter
	events    chan<- Event
	logger    *log.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	serverKind string
	loopState  LoopState
	state      State
}

// NewPresenceEngine creates an engine from opts.
func NewPresenceEngine(opts EngineOpts) *PresenceEngine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	steady := max(opts.PollInterval, opts.MinUpdateSpacing)
	idle := opts.IdleInterval
	if idle <= 0 {
		idle = steady
	}

	timeout := opts.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	requestTO := opts.RequestTimeout
	if requestTO <= 0 {
		requestTO = defaultRequestTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.MinUpdateSpacing > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.MinUpdateSpacing), 1)
	}

	now, sleep := opts.Clock, opts.Sleep
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepCtx
	}

	return &PresenceEngine{
		upstream:   opts.Upstream,
		fetcher:    opts.Fetcher,
		resolver:   opts.Resolver,
		sink:       opts.Sink,
		listener:   opts.Listener,
		intervals:  Intervals{Steady: steady, Idle: idle},
		timeout:    timeout,
		requestTO:  requestTO,
		limiter:    limiter,
		events:     opts.Events,
		logger:     logger,
		now:        now,
		sleep:      sleep,
		serverKind: defaultServerKind,
	}
}

// State returns a copy of the engine's cycle memory.
func (e *PresenceEngine) State() State {
	return e.state
}

// ServerKind returns the upstream label shown in the badge line.
func (e *PresenceEngine) ServerKind() string {
	return e.serverKind
}

// Run connects the sink and reconciles presence until ctx is done or the sink disconnects.
//
// It fails with [shared.ErrSinkStartup] when the sink cannot connect and with [shared.ErrSinkDisconnected] when the
// session drops. Cancellation returns nil. The sink is closed before Run returns in every case.
func (e *PresenceEngine) Run(ctx context.Context) error {
	defer e.release()

	e.transition(Disconnected)
	if err := e.sink.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrSinkStartup, err)
	}

	e.transition(WaitingForSession)
	if err := e.waitForSession(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	sendEvent(e.events, Event{Kind: EventConnected, State: WaitingForSession, Message: "presence session ready"})

	e.resolveServerKind(ctx)

	e.transition(Polling)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !e.sink.Connected() {
			return fmt.Errorf("%w: session closed while polling", shared.ErrSinkDisconnected)
		}

		interval := e.Cycle(ctx)
		if err := e.sleep(ctx, interval); err != nil {
			return nil
		}
	}
}

// Cycle runs one fetch, decide, act round and returns how long to sleep before the next one.
func (e *PresenceEngine) Cycle(ctx context.Context) time.Duration {
	fetchCtx, cancel := context.WithTimeout(ctx, e.requestTO)
	snap, err := e.fetcher.Fetch(fetchCtx, e.listener)
	cancel()
	if err != nil {
		e.logger.Warn("fetch failed, treating cycle as idle", "error", err)
		sendEvent(e.events, Event{Kind: EventUpstreamError, State: e.loopState, Message: "fetch failed", Err: err})
		snap = nil
	}

	now := e.now()
	d := Decide(e.state, snap, now, e.intervals)
	e.logger.Debug("cycle", "action", d.Action, "reason", d.Reason, "next", d.Interval)

	switch d.Action {
	case Clear:
		e.clear(ctx, d.Reason)
	case Push:
		e.push(ctx, *snap, now)
	}
	return d.Interval
}

func (e *PresenceEngine) clear(ctx context.Context, reason string) {
	trackID := e.state.DisplayedTrackID
	if trackID == "" {
		trackID = e.state.StartedTrackID
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return
	}
	if err := e.sink.ClearActivity(ctx); err != nil {
		e.logger.Error("clear failed", "track_id", trackID, "error", err)
		sendEvent(e.events, Event{Kind: EventSinkError, State: e.loopState, TrackID: trackID, Message: "clear failed", Err: err})
		return
	}

	e.state.Blanked()
	e.logger.Info("presence cleared", "reason", reason)
	sendEvent(e.events, Event{Kind: EventCleared, State: e.loopState, TrackID: trackID, Message: reason})
}

func (e *PresenceEngine) push(ctx context.Context, snap models.TrackSnapshot, now time.Time) {
	start := e.state.StartFor(snap.ID, now)

	resolveCtx, cancel := context.WithTimeout(ctx, e.requestTO)
	snap.ArtworkURL = e.resolver.Resolve(resolveCtx, snap)
	cancel()
	payload := formatter.Format(snap, e.serverKind, start, snap.ArtworkURL)

	if err := e.limiter.Wait(ctx); err != nil {
		return
	}
	if err := e.sink.Publish(ctx, payload); err != nil {
		e.logger.Error("publish failed", "track_id", snap.ID, "error", err)
		sendEvent(e.events, Event{Kind: EventSinkError, State: e.loopState, TrackID: snap.ID, Message: "publish failed", Err: err})
		return
	}

	e.state.Pushed(snap.ID, start)
	e.logger.Info("presence updated", "track_id", snap.ID, "artist", snap.Artist, "title", snap.Title)
	sendEvent(e.events, Event{
		Kind:    EventPushed,
		State:   e.loopState,
		TrackID: snap.ID,
		Message: fmt.Sprintf("%s - %s", snap.Artist, snap.Title),
	})
}

func (e *PresenceEngine) waitForSession(ctx context.Context) error {
	deadline := e.now().Add(e.timeout)
	for !e.sink.Connected() {
		if !e.now().Before(deadline) {
			return fmt.Errorf("%w: %w: no session after %s", shared.ErrSinkStartup, shared.ErrTimeout, e.timeout)
		}
		if err := e.sleep(ctx, sessionCheckInterval); err != nil {
			return err
		}
	}
	return nil
}

func (e *PresenceEngine) resolveServerKind(ctx context.Context) {
	if e.upstream == nil {
		return
	}

	info, err := e.upstream.Ping(ctx)
	if err != nil {
		e.logger.Warn("upstream ping failed, using default server kind", "kind", defaultServerKind, "error", err)
		sendEvent(e.events, Event{Kind: EventUpstreamError, State: e.loopState, Message: "ping failed", Err: err})
		return
	}
	if info.Kind != "" {
		e.serverKind = info.Kind
	}
	e.logger.Info("upstream reachable", "kind", e.serverKind, "version", info.ServerVersion)
}

func (e *PresenceEngine) transition(s LoopState) {
	e.loopState = s
	e.logger.Debug("state", "state", s)
}

func (e *PresenceEngine) release() {
	if err := e.sink.Close(); err != nil {
		e.logger.Warn("closing presence sink", "error", err)
	}
	e.transition(Stopped)
	sendEvent(e.events, Event{Kind: EventStopped, State: Stopped, Message: "presence engine stopped"})
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
