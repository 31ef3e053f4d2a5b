// Package signaling provides the persistent event channel to the matchmaking
// server. The Transport wraps a WebSocket connection with automatic
// reconnection; a dropped connection never resumes a previous session — the
// server is assumed to have forgotten it, so the disconnect handler must
// route the loss through session termination.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/util"
)

const (
	reconnectDelay = 1 * time.Second // fixed backoff between dial attempts
	pingInterval   = 30 * time.Second
	writeWait      = 5 * time.Second
)

// Handler consumes the raw payload of one inbound event. Handlers run on the
// transport's read goroutine; register callbacks that enqueue into your own
// loop if you need serialization with other event sources.
type Handler func(data json.RawMessage)

// Transport is the auto-reconnecting bidirectional event channel.
// Register all handlers before calling Connect.
type Transport struct {
	url    string
	dialer *websocket.Dialer

	handlers     map[string]Handler
	onConnect    func()
	onDisconnect func(error)

	mu        sync.Mutex // guards conn and writes to it
	conn      *websocket.Conn
	connected atomic.Bool

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a Transport that will dial the given WebSocket URL.
func New(url string) *Transport {
	return &Transport{
		url:      url,
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string]Handler),
		closed:   make(chan struct{}),
	}
}

// On registers the handler for an event name. Not safe to call after Connect.
func (t *Transport) On(event string, fn Handler) {
	t.handlers[event] = fn
}

// OnConnect registers a callback fired after every successful dial,
// including reconnects.
func (t *Transport) OnConnect(fn func()) { t.onConnect = fn }

// OnDisconnect registers a callback fired when an established connection is
// lost. It is not fired for failed dial attempts.
func (t *Transport) OnDisconnect(fn func(error)) { t.onDisconnect = fn }

// Connected reports whether the socket is currently established.
func (t *Transport) Connected() bool { return t.connected.Load() }

// Connect performs the initial dial and starts the reconnect loop. The first
// dial is synchronous so callers can fail fast on a bad URL; afterwards the
// transport keeps itself alive until Close or ctx cancellation.
func (t *Transport) Connect(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	t.adopt(conn)
	go t.run(ctx, conn)
	return nil
}

// Emit sends one event to the server. Returns an error when the socket is
// down; callers treat that as a transient fault, not a reason to abort.
func (t *Transport) Emit(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || !t.connected.Load() {
		return fmt.Errorf("emit %s: not connected", event)
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close shuts the transport down permanently.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected.Store(false)
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return conn, nil
}

func (t *Transport) adopt(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.connected.Store(true)
	if t.onConnect != nil {
		t.onConnect()
	}
}

// run drives the connection lifecycle: read until failure, report the loss,
// then redial with a fixed backoff until the transport is closed.
func (t *Transport) run(ctx context.Context, conn *websocket.Conn) {
	for {
		stopPing := t.startPing(conn)
		err := t.readLoop(conn)
		stopPing()

		t.connected.Store(false)
		conn.Close()

		select {
		case <-t.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		util.LogWarning("signaling connection lost: %v", err)
		if t.onDisconnect != nil {
			t.onDisconnect(err)
		}
		util.Stats.AddReconnect()

		next, err := t.redial(ctx)
		if err != nil {
			return
		}
		conn = next
		t.adopt(conn)
		util.LogInfo("signaling reconnected")
	}
}

// redial retries with the fixed backoff until a dial succeeds or the
// transport shuts down.
func (t *Transport) redial(ctx context.Context) (*websocket.Conn, error) {
	for {
		select {
		case <-t.closed:
			return nil, fmt.Errorf("transport closed")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay):
		}

		conn, err := t.dial(ctx)
		if err == nil {
			return conn, nil
		}
		util.LogDebug("redial failed: %v", err)
	}
}

// readLoop decodes inbound frames and dispatches them to handlers until the
// connection errors out.
func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		env, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("dropping malformed frame: %v", err)
			continue
		}

		fn, ok := t.handlers[env.Event]
		if !ok {
			util.LogDebug("no handler for event %q", env.Event)
			continue
		}
		fn(env.Data)
	}
}

// startPing keeps intermediaries from timing the socket out. Returns a stop
// function for the reconnect loop to call between connections.
func (t *Transport) startPing(conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				t.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
