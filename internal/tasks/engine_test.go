package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/subcord/internal/formatter"
	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
	tu "github.com/desertthunder/subcord/internal/testing"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	upstream *fakeUpstream
	sink     *tu.FakeSink
	clock    *fakeClock
	events   chan Event
	engine   *PresenceEngine
}

func newEngineFixture(up *fakeUpstream, sink *tu.FakeSink) *engineFixture {
	if sink == nil {
		sink = &tu.FakeSink{}
	}
	f := &engineFixture{
		upstream: up,
		sink:     sink,
		clock:    newFakeClock(),
		events:   make(chan Event, 64),
	}
	f.engine = NewPresenceEngine(EngineOpts{
		Upstream:       up,
		Fetcher:        NewSnapshotFetcher(up, nil, nil),
		Resolver:       NewArtworkResolver(up, nil, testFallback, "", nil),
		Sink:           sink,
		Listener:       "alice",
		PollInterval:   15 * time.Second,
		IdleInterval:   5 * time.Second,
		SessionTimeout: 3 * time.Second,
		Events:         f.events,
		Clock:          f.clock.Now,
	})
	return f
}

// step runs one cycle and advances the clock by the returned interval.
func (f *engineFixture) step(ctx context.Context) time.Duration {
	d := f.engine.Cycle(ctx)
	f.clock.Advance(d)
	return d
}

func (f *engineFixture) play(entries ...services.NowPlayingEntry) {
	f.upstream.NowPlaying = []nowPlayingStep{{Entries: entries}}
}

func (f *engineFixture) drain() []Event {
	var evs []Event
	for {
		select {
		case ev := <-f.events:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func hasEvent(evs []Event, kind EventKind) bool {
	for _, ev := range evs {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func trackEntry(id string, duration int) services.NowPlayingEntry {
	return services.NowPlayingEntry{
		ID:       id,
		Title:    "Track " + id,
		Artist:   "Artist " + id,
		Album:    "Album",
		Duration: duration,
		Suffix:   "mp3",
		BitRate:  320,
		Username: "alice",
	}
}

func TestPresenceEngineCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry then new track", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.play(trackEntry("1", 200))

		start := f.clock.Now()
		f.step(ctx)

		if n := f.sink.Count("publish"); n != 1 {
			t.Fatalf("expected 1 publish, got %d", n)
		}
		if got := f.sink.Published[0].Subtitle; got != "Track 1"+formatter.Marker {
			t.Errorf("expected subtitle of track 1, got %q", got)
		}

		expiry := start.Add(200 * time.Second)
		for f.clock.Now().Before(expiry) {
			f.step(ctx)
			if f.sink.Count("clear") != 0 {
				t.Fatalf("cleared before expiry at %v", f.clock.Now().Sub(start))
			}
		}

		f.step(ctx)
		if n := f.sink.Count("clear"); n != 1 {
			t.Fatalf("expected clear on first cycle past expiry, got %d clears", n)
		}

		for range 10 {
			f.step(ctx)
		}
		if n := f.sink.Count("clear"); n != 1 {
			t.Errorf("expected exactly 1 clear, got %d", n)
		}
		if n := f.sink.Count("publish"); n != 1 {
			t.Errorf("expected no republish of the expired track, got %d publishes", n)
		}

		f.play(trackEntry("2", 180))
		pushedAt := f.clock.Now()
		f.step(ctx)

		if n := f.sink.Count("publish"); n != 2 {
			t.Fatalf("expected second publish, got %d", n)
		}
		p := f.sink.Published[1]
		if p.Start != pushedAt.UnixMilli() {
			t.Errorf("expected fresh start %d, got %d", pushedAt.UnixMilli(), p.Start)
		}
		if p.End-p.Start != 180_000 {
			t.Errorf("expected 180s window, got %dms", p.End-p.Start)
		}
		if s := f.engine.State(); s.DisplayedTrackID != "2" || s.Cleared {
			t.Errorf("unexpected state %+v", s)
		}
	})

	t.Run("unchanged track makes no sink calls", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.play(trackEntry("1", 0))

		for range 20 {
			f.step(ctx)
		}

		if trace := f.sink.Trace(); trace != "publish" {
			t.Errorf("expected a single publish, got %q", trace)
		}
	})

	t.Run("single clear across silence", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.play(trackEntry("1", 300))
		f.step(ctx)

		f.play()
		for range 8 {
			if d := f.step(ctx); d != 5*time.Second {
				t.Errorf("expected idle interval, got %v", d)
			}
		}

		if trace := f.sink.Trace(); trace != "publish,clear" {
			t.Errorf("expected publish then one clear, got %q", trace)
		}
	})

	t.Run("track returning after silence keeps its start", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.play(trackEntry("1", 300))
		f.step(ctx)
		first := f.sink.Published[0].Start

		f.play()
		f.step(ctx)

		f.play(trackEntry("1", 300))
		f.step(ctx)

		if n := f.sink.Count("publish"); n != 2 {
			t.Fatalf("expected republish, got %d", n)
		}
		if f.sink.Published[1].Start != first {
			t.Errorf("expected start %d to be kept, got %d", first, f.sink.Published[1].Start)
		}
	})

	t.Run("upstream error is contained", func(t *testing.T) {
		up := &fakeUpstream{NowPlaying: []nowPlayingStep{
			{Err: errors.New("connection reset")},
			{Entries: []services.NowPlayingEntry{trackEntry("1", 200)}},
		}}
		f := newEngineFixture(up, nil)

		if d := f.step(ctx); d != 5*time.Second {
			t.Errorf("expected idle interval after error, got %v", d)
		}
		evs := f.drain()
		if !hasEvent(evs, EventUpstreamError) {
			t.Errorf("expected upstream_error event, got %+v", evs)
		}
		if f.sink.Count("publish") != 0 {
			t.Error("expected no publish on failed cycle")
		}

		f.step(ctx)
		if n := f.sink.Count("publish"); n != 1 {
			t.Errorf("expected publish on next cycle, got %d", n)
		}
	})

	t.Run("upstream error while displayed clears once", func(t *testing.T) {
		up := &fakeUpstream{NowPlaying: []nowPlayingStep{
			{Entries: []services.NowPlayingEntry{trackEntry("1", 200)}},
			{Err: errors.New("boom")},
			{Err: errors.New("boom")},
			{Entries: []services.NowPlayingEntry{trackEntry("1", 200)}},
		}}
		f := newEngineFixture(up, nil)

		for range 4 {
			f.step(ctx)
		}

		if trace := f.sink.Trace(); trace != "publish,clear,publish" {
			t.Errorf("unexpected trace %q", trace)
		}
		if f.sink.Published[1].Start != f.sink.Published[0].Start {
			t.Errorf("expected the same start after a failed fetch, got %d and %d",
				f.sink.Published[0].Start, f.sink.Published[1].Start)
		}
	})

	t.Run("fetch error does not move expiry", func(t *testing.T) {
		up := &fakeUpstream{NowPlaying: []nowPlayingStep{
			{Entries: []services.NowPlayingEntry{trackEntry("1", 30)}},
			{Err: errors.New("connection reset")},
			{Entries: []services.NowPlayingEntry{trackEntry("1", 30)}},
			{Entries: []services.NowPlayingEntry{trackEntry("1", 30)}},
		}}
		f := newEngineFixture(up, nil)

		for range 4 {
			f.step(ctx)
		}

		if trace := f.sink.Trace(); trace != "publish,clear,publish,clear" {
			t.Errorf("expected the original window to expire, got %q", trace)
		}
	})

	t.Run("failed publish is retried", func(t *testing.T) {
		sink := &tu.FakeSink{PublishErrs: []error{shared.ErrSinkPush}}
		f := newEngineFixture(&fakeUpstream{}, sink)
		f.play(trackEntry("1", 200))

		f.step(ctx)
		if s := f.engine.State(); s.DisplayedTrackID != "" || s.StartedTrackID != "" {
			t.Errorf("expected state untouched after failed publish, got %+v", s)
		}
		if !hasEvent(f.drain(), EventSinkError) {
			t.Error("expected sink_error event")
		}

		f.step(ctx)
		f.step(ctx)
		if trace := sink.Trace(); trace != "publish,publish" {
			t.Errorf("expected retry then quiet, got %q", trace)
		}
		if s := f.engine.State(); s.DisplayedTrackID != "1" {
			t.Errorf("expected track 1 displayed, got %+v", s)
		}
	})

	t.Run("failed clear is retried", func(t *testing.T) {
		sink := &tu.FakeSink{ClearErrs: []error{shared.ErrSinkPush}}
		f := newEngineFixture(&fakeUpstream{}, sink)
		f.play(trackEntry("1", 200))
		f.step(ctx)

		f.play()
		for range 5 {
			f.step(ctx)
		}

		if trace := sink.Trace(); trace != "publish,clear,clear" {
			t.Errorf("expected failed clear to be retried once, got %q", trace)
		}
		if s := f.engine.State(); !s.Cleared || s.DisplayedTrackID != "" {
			t.Errorf("expected cleared state, got %+v", s)
		}
	})

	t.Run("artwork and badge", func(t *testing.T) {
		up := &fakeUpstream{
			Info: &services.ServerInfo{Kind: "navidrome"},
			AlbumInfos: map[string]*services.AlbumInfo{
				"al1": {LargeImageURL: "https://img.example.com/al1.jpg"},
			},
			Albums: map[string]*services.Album{"al1": {ID: "al1", Artist: "Artist 1", SongCount: 1}},
		}
		f := newEngineFixture(up, nil)
		f.engine.resolveServerKind(ctx)

		e := trackEntry("1", 200)
		e.AlbumID = "al1"
		f.play(e)
		f.step(ctx)

		p := f.sink.Published[0]
		if p.ImageURL != "https://img.example.com/al1.jpg" {
			t.Errorf("unexpected image %q", p.ImageURL)
		}
		if p.BadgeLine != "Navidrome · 320kbps" {
			t.Errorf("unexpected badge %q", p.BadgeLine)
		}
		if p.DetailLine != "Album (1 of 1)" {
			t.Errorf("unexpected detail %q", p.DetailLine)
		}
	})

	t.Run("stalled upstream counts as nothing playing", func(t *testing.T) {
		var calls atomic.Int32
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"subsonic-response":{"status":"ok","version":"1.16.1","nowPlaying":{"entry":[`+
					`{"id":"1","title":"Track 1","artist":"Artist 1","album":"Album","duration":200,"username":"alice"}]}}}`)
				return
			}
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		t.Cleanup(server.Close)
		t.Cleanup(func() { close(release) })

		up := services.NewSubsonicService(server.URL, "alice", "sesame", nil)
		sink := &tu.FakeSink{}
		events := make(chan Event, 16)
		clock := newFakeClock()
		engine := NewPresenceEngine(EngineOpts{
			Fetcher:        NewSnapshotFetcher(up, nil, nil),
			Resolver:       NewArtworkResolver(up, nil, testFallback, "", nil),
			Sink:           sink,
			Listener:       "alice",
			PollInterval:   15 * time.Second,
			IdleInterval:   5 * time.Second,
			RequestTimeout: 50 * time.Millisecond,
			Events:         events,
			Clock:          clock.Now,
		})

		if d := engine.Cycle(ctx); d != 15*time.Second {
			t.Fatalf("expected steady interval, got %v", d)
		}

		started := time.Now()
		if d := engine.Cycle(ctx); d != 5*time.Second {
			t.Errorf("expected idle interval after a stalled fetch, got %v", d)
		}
		if elapsed := time.Since(started); elapsed > 5*time.Second {
			t.Errorf("expected the request timeout to end the cycle, took %v", elapsed)
		}
		if trace := sink.Trace(); trace != "publish,clear" {
			t.Errorf("expected publish then clear, got %q", trace)
		}

		var sawError bool
		for len(events) > 0 {
			if ev := <-events; ev.Kind == EventUpstreamError && errors.Is(ev.Err, shared.ErrUpstream) {
				sawError = true
			}
		}
		if !sawError {
			t.Error("expected an upstream_error event")
		}
	})
}

type neverReadySink struct {
	tu.FakeSink
}

func (s *neverReadySink) Connected() bool { return false }

func TestPresenceEngineRun(t *testing.T) {
	newRun := func(f *engineFixture, maxSleeps int) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		sleeps := 0
		f.engine.sleep = func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f.clock.Advance(d)
			sleeps++
			if sleeps >= maxSleeps {
				cancel()
			}
			return ctx.Err()
		}
		return ctx, cancel
	}

	t.Run("connect failure", func(t *testing.T) {
		sink := &tu.FakeSink{ConnectErr: errors.New("discord not running")}
		f := newEngineFixture(&fakeUpstream{}, sink)

		err := f.engine.Run(context.Background())
		if !errors.Is(err, shared.ErrSinkStartup) {
			t.Fatalf("expected ErrSinkStartup, got %v", err)
		}
		if f.upstream.NowPlayingCalls != 0 {
			t.Error("expected loop not to start")
		}
		if sink.Closed != 1 {
			t.Errorf("expected sink to be closed once, got %d", sink.Closed)
		}
	})

	t.Run("session timeout", func(t *testing.T) {
		sink := &neverReadySink{}
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.engine.sink = sink
		ctx, cancel := newRun(f, 100)
		defer cancel()

		err := f.engine.Run(ctx)
		if !errors.Is(err, shared.ErrSinkStartup) || !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected startup timeout, got %v", err)
		}
		if sink.Closed != 1 {
			t.Errorf("expected sink to be closed, got %d", sink.Closed)
		}
	})

	t.Run("cancellation releases sink", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{}, nil)
		f.play(trackEntry("1", 200))
		ctx, cancel := newRun(f, 3)
		defer cancel()

		if err := f.engine.Run(ctx); err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
		if f.sink.Closed != 1 {
			t.Errorf("expected sink closed once, got %d", f.sink.Closed)
		}
		if f.upstream.NowPlayingCalls != 3 {
			t.Errorf("expected 3 cycles, got %d", f.upstream.NowPlayingCalls)
		}

		evs := f.drain()
		for _, kind := range []EventKind{EventConnected, EventPushed, EventStopped} {
			if !hasEvent(evs, kind) {
				t.Errorf("expected %s event", kind)
			}
		}
	})

	t.Run("disconnect ends loop", func(t *testing.T) {
		sink := &tu.FakeSink{DisconnectAfter: 1}
		f := newEngineFixture(&fakeUpstream{}, sink)
		f.play(trackEntry("1", 200))
		ctx, cancel := newRun(f, 100)
		defer cancel()

		err := f.engine.Run(ctx)
		if !errors.Is(err, shared.ErrSinkDisconnected) {
			t.Fatalf("expected ErrSinkDisconnected, got %v", err)
		}
		if f.upstream.NowPlayingCalls != 1 {
			t.Errorf("expected loop to stop after 1 cycle, got %d", f.upstream.NowPlayingCalls)
		}
		if sink.Closed != 1 {
			t.Errorf("expected sink closed once, got %d", sink.Closed)
		}
	})

	t.Run("ping failure falls back to subsonic", func(t *testing.T) {
		f := newEngineFixture(&fakeUpstream{PingErr: errors.New("401")}, nil)
		f.play(trackEntry("1", 200))
		ctx, cancel := newRun(f, 1)
		defer cancel()

		if err := f.engine.Run(ctx); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if f.engine.ServerKind() != "subsonic" {
			t.Errorf("expected subsonic, got %q", f.engine.ServerKind())
		}
		if badge := f.sink.Published[0].BadgeLine; !strings.HasPrefix(badge, "Subsonic") {
			t.Errorf("expected Subsonic badge, got %q", badge)
		}
	})

	t.Run("sink calls are spaced", func(t *testing.T) {
		up := &fakeUpstream{NowPlaying: []nowPlayingStep{
			{Entries: []services.NowPlayingEntry{trackEntry("1", 200)}},
			{Entries: []services.NowPlayingEntry{trackEntry("2", 200)}},
			{Entries: []services.NowPlayingEntry{trackEntry("3", 200)}},
		}}
		sink := &tu.FakeSink{}
		spacing := 40 * time.Millisecond
		e := NewPresenceEngine(EngineOpts{
			Upstream:         up,
			Fetcher:          NewSnapshotFetcher(up, nil, nil),
			Resolver:         NewArtworkResolver(up, nil, testFallback, "", nil),
			Sink:             sink,
			Listener:         "alice",
			PollInterval:     time.Millisecond,
			MinUpdateSpacing: spacing,
		})

		began := time.Now()
		for range 3 {
			if d := e.Cycle(context.Background()); d != spacing {
				t.Errorf("expected steady interval raised to %v, got %v", spacing, d)
			}
		}
		elapsed := time.Since(began)

		if sink.Count("publish") != 3 {
			t.Fatalf("expected 3 publishes, got %d", sink.Count("publish"))
		}
		if elapsed < 2*spacing-5*time.Millisecond {
			t.Errorf("expected publishes spaced by %v, took %v", spacing, elapsed)
		}
	})
}
