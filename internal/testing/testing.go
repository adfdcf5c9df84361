// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/desertthunder/subcord/internal/models"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// FakeSink records every call made to a presence sink.
type FakeSink struct {
	mu sync.Mutex

	ConnectErr  error
	PublishErrs []error // Consumed one per Publish call
	ClearErrs   []error // Consumed one per ClearActivity call

	// DisconnectAfter drops the connection once this many Publish+Clear calls were made (0 = never).
	DisconnectAfter int

	connected bool
	Calls     []string
	Published []models.Presence
	Closed    int
}

func (f *FakeSink) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "connect")
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeSink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeSink) Publish(ctx context.Context, p models.Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "publish")
	defer f.maybeDisconnect()

	if err := pop(&f.PublishErrs); err != nil {
		return err
	}
	f.Published = append(f.Published, p)
	return nil
}

func (f *FakeSink) ClearActivity(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, "clear")
	defer f.maybeDisconnect()

	return pop(&f.ClearErrs)
}

func (f *FakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Closed++
	f.connected = false
	return nil
}

// Disconnect simulates Discord going away.
func (f *FakeSink) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// Count returns how many calls of the given kind ("publish", "clear", "connect") were recorded.
func (f *FakeSink) Count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.Calls {
		if c == kind {
			n++
		}
	}
	return n
}

// Trace returns the recorded sink calls joined by commas.
func (f *FakeSink) Trace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.Calls, ",")
}

func (f *FakeSink) maybeDisconnect() {
	if f.DisconnectAfter <= 0 {
		return
	}
	pushes := 0
	for _, c := range f.Calls {
		if c == "publish" || c == "clear" {
			pushes++
		}
	}
	if pushes >= f.DisconnectAfter {
		f.connected = false
	}
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
