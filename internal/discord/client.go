package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subcord/internal/models"
	"github.com/desertthunder/subcord/internal/shared"
)

const (
	ipcVersion     = 1
	defaultTimeout = 5 * time.Second

	cmdDispatch    = "DISPATCH"
	cmdSetActivity = "SET_ACTIVITY"
	evtReady       = "READY"
	evtError       = "ERROR"
)

// Client is a Discord Rich Presence client speaking the local IPC protocol.
//
// Requests are serialized. A reader goroutine owns the socket between requests: it answers pings and notices a
// close or hang-up from Discord while the presence is idle.
type Client struct {
	clientID string
	logger   *log.Logger
	paths    func() []string
	timeout  time.Duration
	pid      int

	mu        sync.Mutex // Serializes requests and guards the session fields below
	wmu       sync.Mutex // Guards writes to conn
	conn      net.Conn
	replies   chan []byte
	done      chan struct{}
	reason    string // Set by the reader before done is closed
	connected atomic.Bool
}

// NewClient creates a client for the Discord application clientID. A nil logger discards output.
func NewClient(clientID string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		clientID: clientID,
		logger:   logger,
		paths:    defaultSocketPaths,
		timeout:  defaultTimeout,
		pid:      os.Getpid(),
	}
}

// Connect dials the local Discord client and performs the handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}
	c.drop()

	conn, err := dial(ctx, c.paths())
	if err != nil {
		return err
	}
	conn.SetDeadline(c.deadline(ctx))

	if err := writeFrame(conn, OpHandshake, handshake{V: ipcVersion, ClientID: c.clientID}); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	op, payload, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	if op == OpClose {
		conn.Close()
		return fmt.Errorf("handshake rejected: %s", closeReason(payload))
	}

	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		conn.Close()
		return fmt.Errorf("%w: handshake reply: %w", shared.ErrUnexpectedFormat, err)
	}
	if msg.Cmd != cmdDispatch || msg.Evt != evtReady {
		conn.Close()
		return fmt.Errorf("%w: expected READY, got %s %s", shared.ErrUnexpectedFormat, msg.Cmd, msg.Evt)
	}
	conn.SetDeadline(time.Time{})

	c.conn = conn
	c.replies = make(chan []byte, 8)
	c.done = make(chan struct{})
	c.reason = ""
	c.connected.Store(true)
	go c.read(conn, c.replies, c.done)

	c.logger.Info("connected to discord", "client_id", c.clientID, "socket", conn.RemoteAddr())
	return nil
}

// Connected reports whether the IPC session is live.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// SetActivity replaces the Rich Presence. A nil activity clears it.
func (c *Client) SetActivity(ctx context.Context, a *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("%w: %w", shared.ErrSinkPush, shared.ErrSinkDisconnected)
	}

	nonce := shared.GenerateID()
	deadline := c.deadline(ctx)

	req := message{
		Cmd:   cmdSetActivity,
		Nonce: nonce,
		Args:  activityArgs{PID: c.pid, Activity: a},
	}
	if err := c.write(c.conn, deadline, OpFrame, req); err != nil {
		c.drop()
		return fmt.Errorf("%w: %w", shared.ErrSinkPush, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", shared.ErrSinkPush, ctx.Err())
		case <-timer.C:
			c.drop()
			return fmt.Errorf("%w: %w: no reply from discord", shared.ErrSinkPush, shared.ErrTimeout)
		case <-c.done:
			c.drop()
			return fmt.Errorf("%w: %w: %s", shared.ErrSinkPush, shared.ErrSinkDisconnected, c.reason)
		case payload := <-c.replies:
			var msg message
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("%w: %w: %w", shared.ErrSinkPush, shared.ErrUnexpectedFormat, err)
			}
			if msg.Nonce != nonce {
				continue
			}
			if msg.Evt == evtError {
				var e errorData
				_ = json.Unmarshal(msg.Data, &e)
				return fmt.Errorf("%w: discord error %d: %s", shared.ErrSinkPush, e.Code, e.Message)
			}
			return nil
		}
	}
}

// ClearActivity removes the Rich Presence.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.SetActivity(ctx, nil)
}

// Publish shows p as a listening activity.
func (c *Client) Publish(ctx context.Context, p models.Presence) error {
	return c.SetActivity(ctx, FromPresence(p))
}

// Close ends the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.connected.Store(false)
	werr := c.write(c.conn, time.Now().Add(time.Second), OpClose, struct{}{})
	cerr := c.conn.Close()
	<-c.done
	c.conn = nil

	if cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		return cerr
	}
	if werr != nil && !errors.Is(werr, net.ErrClosed) {
		c.logger.Debug("close frame not sent", "error", werr)
	}
	return nil
}

// read consumes every frame Discord sends until the session ends.
//
// Replies are handed to the pending request; pings are answered here.
func (c *Client) read(conn net.Conn, replies chan<- []byte, done chan<- struct{}) {
	defer close(done)

	for {
		op, payload, err := readFrame(conn)
		if err != nil {
			c.reason = "connection lost"
			if c.connected.Swap(false) {
				c.logger.Warn("discord connection lost", "error", err)
			}
			return
		}

		switch op {
		case OpPing:
			var pong any = struct{}{}
			if json.Valid(payload) {
				pong = json.RawMessage(payload)
			}
			if err := c.write(conn, time.Now().Add(c.timeout), OpPong, pong); err != nil {
				c.reason = "pong failed"
				c.connected.Store(false)
				return
			}
		case OpClose:
			c.reason = closeReason(payload)
			if c.connected.Swap(false) {
				c.logger.Warn("discord closed the session", "reason", c.reason)
			}
			return
		case OpFrame:
			select {
			case replies <- payload:
			default:
				c.logger.Debug("dropping unsolicited frame")
			}
		}
	}
}

func (c *Client) write(conn net.Conn, deadline time.Time, op Opcode, v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	conn.SetWriteDeadline(deadline)
	return writeFrame(conn, op, v)
}

// drop tears down a broken session. Callers hold mu.
func (c *Client) drop() {
	if c.conn == nil {
		return
	}
	if c.connected.Swap(false) {
		c.logger.Warn("discord connection lost")
	}
	c.conn.Close()
	<-c.done
	c.conn = nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(c.timeout)
}

func closeReason(payload []byte) string {
	var e errorData
	if err := json.Unmarshal(payload, &e); err != nil || e.Message == "" {
		return "connection closed by discord"
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}
