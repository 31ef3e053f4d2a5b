// Package app wires the session machine, chat relay, typing tracker, media
// negotiator, and moderation flows to the signaling transport. The Client
// owns a single event loop; transport handlers and user actions enqueue
// closures into it, so every session transition runs on one goroutine.
package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/straychat/straychat/internal/chat"
	"github.com/straychat/straychat/internal/config"
	"github.com/straychat/straychat/internal/moderation"
	"github.com/straychat/straychat/internal/presence"
	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/session"
	"github.com/straychat/straychat/internal/signaling"
	"github.com/straychat/straychat/internal/util"
)

// onlinePollInterval is how often the online-user gauge is refreshed.
const onlinePollInterval = 10 * time.Second

// Wire is the outbound half of the transport.
type Wire interface {
	Emit(event string, payload any) error
	Connected() bool
}

// EventSource is the inbound half: handler registration and connection
// lifecycle callbacks.
type EventSource interface {
	On(event string, fn signaling.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(error))
}

// Negotiator is the slice of the media negotiator the client drives. Nil in
// text mode.
type Negotiator interface {
	AcquireLocal() error
	Begin(token string, role session.Role) error
	HandleSignal(token string, data protocol.SignalData) error
	Teardown()
	Close()
	OnNotice(fn func(string))
}

// Renderer receives everything the user should see. Append and Typing may
// be called from transport goroutines; implementations must tolerate that.
type Renderer interface {
	Status(text string)
	Append(line chat.Line)
	Typing(active bool)
	Online(count int)
	ConfirmExit(visible bool)
	InputEnabled(enabled bool)
	Notice(text string)
}

// Client is the orchestrator. All fields past the constructor are touched
// only from the event loop.
type Client struct {
	cfg      *config.Config
	selfID   string
	wire     Wire
	renderer Renderer

	machine    *session.Machine
	relay      *chat.Relay
	tracker    *presence.Tracker
	negotiator Negotiator
	mod        *moderation.Controller

	events      chan func()
	closed      chan struct{}
	autoRestart bool
	pendingFind bool
	closing     bool
}

// New builds a client for the given mode. store may be nil, which disables
// the block/report commands. negotiator must be non-nil exactly in video
// mode.
func New(cfg *config.Config, wire Wire, source EventSource, renderer Renderer, negotiator Negotiator, store *moderation.Store) *Client {
	mode := session.ModeText
	if cfg.Mode == "video" {
		mode = session.ModeVideo
	}

	c := &Client{
		cfg:        cfg,
		selfID:     uuid.NewString(),
		wire:       wire,
		renderer:   renderer,
		machine:    session.New(mode),
		negotiator: negotiator,
		events:     make(chan func(), 128),
		closed:     make(chan struct{}),
	}

	c.relay = chat.NewRelay(wire, c.selfID)
	c.relay.OnLine(renderer.Append)

	c.tracker = presence.NewTracker(wire, cfg.TypingIdle())
	c.tracker.OnRemote(renderer.Typing)

	if store != nil {
		c.mod = moderation.NewController(store, wire,
			c.relay.PartnerID,
			c.relay.SystemLine,
			func() { c.apply(session.Event{Kind: session.UserSkip}) },
		)
	}

	if negotiator != nil {
		negotiator.OnNotice(func(text string) {
			c.do(func() {
				c.relay.SystemLine(text)
				c.renderer.Notice(text)
			})
		})
	}

	c.bind(source)
	return c
}

// SelfID returns the client id attached to outbound messages.
func (c *Client) SelfID() string { return c.selfID }

// Run drives the event loop until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if c.negotiator != nil {
		if err := c.negotiator.AcquireLocal(); err != nil {
			util.LogWarning("local media unavailable: %v", err)
		}
	}
	c.renderer.Status("Ready. Click start to find a stranger.")
	c.requestOnline()

	ticker := time.NewTicker(onlinePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case fn := <-c.events:
			fn()
		case <-ticker.C:
			c.requestOnline()
		}
	}
}

// ---------------------------------------------------------------------------
// User actions (safe from any goroutine)
// ---------------------------------------------------------------------------

// Start enters the matchmaking queue.
func (c *Client) Start() { c.do(func() { c.apply(session.Event{Kind: session.UserStart}) }) }

// Stop leaves the queue or asks to end the current chat.
func (c *Client) Stop() { c.do(func() { c.apply(session.Event{Kind: session.UserStop}) }) }

// ConfirmExit answers the pending exit confirmation with yes.
func (c *Client) ConfirmExit() {
	c.do(func() { c.apply(session.Event{Kind: session.UserConfirmExit}) })
}

// CancelExit answers the pending exit confirmation with no.
func (c *Client) CancelExit() {
	c.do(func() { c.apply(session.Event{Kind: session.UserCancelExit}) })
}

// Next ends the current session and requeues without confirmation.
func (c *Client) Next() { c.do(func() { c.apply(session.Event{Kind: session.UserSkip}) }) }

// Send relays one chat message.
func (c *Client) Send(text string) {
	c.do(func() {
		if err := c.relay.Send(text); err != nil {
			c.renderer.Notice("You are not chatting with anyone.")
			return
		}
		c.tracker.Blur()
	})
}

// Typing records one local keystroke for the typing indicator. Text mode
// shares a capped preview of the draft; video mode sends a bare event.
func (c *Client) Typing(draft string) {
	c.do(func() {
		if c.machine.Mode() != session.ModeText {
			draft = ""
		}
		c.tracker.Keystroke(draft)
	})
}

// Block blocks the current partner and skips to the next stranger.
func (c *Client) Block() {
	c.do(func() {
		if c.mod == nil {
			c.renderer.Notice("Moderation is not available.")
			return
		}
		if err := c.mod.Block(); err != nil {
			c.renderer.Notice("No stranger to block yet.")
		}
	})
}

// Report files a report against the current partner. The chat continues.
func (c *Client) Report(reason string) {
	c.do(func() {
		if c.mod == nil {
			c.renderer.Notice("Moderation is not available.")
			return
		}
		if err := c.mod.Report(reason); err != nil {
			c.renderer.Notice("No stranger to report yet.")
		}
	})
}

// ---------------------------------------------------------------------------
// Event loop internals
// ---------------------------------------------------------------------------

// do enqueues fn into the event loop. Calls after shutdown are dropped.
func (c *Client) do(fn func()) {
	select {
	case c.events <- fn:
	case <-c.closed:
	}
}

// pump runs queued closures until the queue is empty. Only the loop
// goroutine (or a test standing in for it) may call this.
func (c *Client) pump() {
	for {
		select {
		case fn := <-c.events:
			fn()
		default:
			return
		}
	}
}

// apply feeds one event to the machine and executes the resulting effects
// in order.
func (c *Client) apply(ev session.Event) {
	for _, eff := range c.machine.Apply(ev) {
		c.execute(eff)
	}
}

func (c *Client) execute(eff session.Effect) {
	switch eff.Kind {
	case session.EffectEmitFind:
		c.emitFind()

	case session.EffectEmitStop:
		if err := c.wire.Emit(protocol.EventStop, nil); err != nil {
			util.LogDebug("emit stop: %v", err)
		}

	case session.EffectStartMedia:
		c.startMedia()

	case session.EffectTeardown:
		if c.negotiator != nil {
			c.negotiator.Teardown()
		}
		c.tracker.SetEnabled(false)
		c.relay.SetActive(false)
		c.renderer.Typing(false)

	case session.EffectStatus:
		c.renderer.Status(eff.Text)

	case session.EffectSystemLine:
		c.relay.SystemLine(eff.Text)

	case session.EffectConfirmExit:
		c.renderer.ConfirmExit(true)

	case session.EffectDismissExit:
		c.renderer.ConfirmExit(false)

	case session.EffectInputEnabled:
		c.relay.SetActive(true)
		c.tracker.SetEnabled(true)
		c.renderer.InputEnabled(true)

	case session.EffectInputDisabled:
		c.renderer.InputEnabled(false)

	case session.EffectAutoRestart:
		if !c.closing {
			c.autoRestart = true
		}

	case session.EffectCleanup:
		c.relay.Reset()
		c.apply(session.Event{Kind: session.CleanupDone})
		if c.autoRestart {
			c.autoRestart = false
			c.apply(session.Event{Kind: session.UserAutoRestart})
		}
	}
}

// emitFind enters the queue. Text mode uses the legacy start event carrying
// the client id; video mode sends a find with the mode attached. When the
// socket is down the entry is marked pending and replayed once on connect.
func (c *Client) emitFind() {
	var err error
	if c.machine.Mode() == session.ModeText {
		err = c.wire.Emit(protocol.EventStart, c.selfID)
	} else {
		err = c.wire.Emit(protocol.EventFind, protocol.FindPayload{Mode: "video"})
	}
	if err != nil {
		util.LogWarning("enter queue: %v", err)
		c.pendingFind = true
		c.renderer.Status("Connecting to server...")
		return
	}
	c.pendingFind = false
}

// startMedia begins negotiation for the freshly matched session. The
// initiator transitions on its own offer; the responder waits for the
// inbound one.
func (c *Client) startMedia() {
	if c.negotiator == nil {
		return
	}
	token, role := c.machine.Token(), c.machine.Role()
	if err := c.negotiator.Begin(token, role); err != nil {
		util.LogError("start media: %v", err)
		c.relay.SystemLine("Could not start video. Skip to try again.")
		return
	}
	if role == session.RoleInitiator {
		c.apply(session.Event{Kind: session.MediaOfferSent})
	}
}

func (c *Client) requestOnline() {
	if !c.wire.Connected() {
		return
	}
	if err := c.wire.Emit(protocol.EventGetOnlineCount, nil); err != nil {
		util.LogDebug("online count request: %v", err)
	}
}

// shutdown runs on the loop goroutine when ctx is cancelled: leave the
// session cleanly, then release media. The closing flag suppresses the
// skip's auto-restart so an exiting client never re-enters the queue.
func (c *Client) shutdown() {
	close(c.closed)
	c.closing = true
	switch c.machine.State() {
	case session.Idle, session.Terminated:
	default:
		c.apply(session.Event{Kind: session.UserSkip})
	}
	if c.negotiator != nil {
		c.negotiator.Close()
	}
}

// ---------------------------------------------------------------------------
// Transport wiring
// ---------------------------------------------------------------------------

// bind registers every inbound event. Handlers run on the transport's read
// goroutine and only enqueue; the loop does the work.
func (c *Client) bind(source EventSource) {
	source.OnConnect(func() {
		c.do(func() {
			// Only a start issued while the socket was down is replayed;
			// reconnects never resume or re-enter anything else.
			if c.pendingFind && c.machine.State() == session.Searching {
				c.emitFind()
			}
			c.requestOnline()
		})
	})

	source.OnDisconnect(func(err error) {
		c.do(func() {
			// Losing an established socket kills whatever was in flight,
			// a pending search included. The user starts over from Idle.
			switch c.machine.State() {
			case session.Idle, session.Terminated:
			default:
				c.apply(session.Event{
					Kind:   session.TransportLost,
					Banner: "Connection to server lost.",
				})
			}
		})
	})

	source.On(protocol.EventSearching, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() { c.apply(session.Event{Kind: session.ServerSearching, Banner: banner}) })
	})
	source.On(protocol.EventWaiting, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() { c.apply(session.Event{Kind: session.ServerSearching, Banner: banner}) })
	})

	source.On(protocol.EventChatStart, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() {
			// The text protocol has no room token; a local one keeps the
			// stale-signal guard uniform across modes.
			wasSearching := c.machine.State() == session.Searching
			c.apply(session.Event{
				Kind:   session.ServerMatched,
				Token:  uuid.NewString(),
				Banner: banner,
			})
			if wasSearching && c.machine.State() == session.Active {
				util.Stats.AddSession()
			}
		})
	})

	source.On(protocol.EventMatched, func(data json.RawMessage) {
		var p protocol.MatchedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			util.LogWarning("malformed matched payload: %v", err)
			return
		}
		role := session.RoleResponder
		if p.Initiator {
			role = session.RoleInitiator
		}
		c.do(func() {
			wasSearching := c.machine.State() == session.Searching
			c.apply(session.Event{Kind: session.ServerMatched, Token: p.Room, Role: role})
			if wasSearching && c.machine.State() != session.Searching {
				util.Stats.AddSession()
			}
		})
	})

	source.On(protocol.EventSignal, func(data json.RawMessage) {
		var p protocol.SignalPayload
		if err := json.Unmarshal(data, &p); err != nil {
			util.LogWarning("malformed signal payload: %v", err)
			return
		}
		c.do(func() { c.handleSignal(p) })
	})

	source.On(protocol.EventMessageToClient, func(data json.RawMessage) {
		var msg protocol.MessagePayload
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogWarning("malformed message payload: %v", err)
			return
		}
		c.do(func() {
			switch c.machine.State() {
			case session.Active, session.Ending:
			default:
				return
			}
			if msg.ID != "" && msg.ID != c.selfID {
				c.machine.LearnPartner(msg.ID)
			}
			c.relay.Receive(msg)
		})
	})

	source.On(protocol.EventStrangerTyping, func(json.RawMessage) {
		c.do(func() { c.tracker.RemoteStarted() })
	})
	source.On(protocol.EventStrangerDoneTyping, func(json.RawMessage) {
		c.do(func() { c.tracker.RemoteStopped() })
	})

	source.On(protocol.EventStrangerDisconnected, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() {
			c.apply(session.Event{
				Kind:   session.ServerPartnerGone,
				Banner: bannerOrDefault(banner, "Stranger has disconnected."),
			})
		})
	})
	source.On(protocol.EventGoodBye, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() {
			c.apply(session.Event{Kind: session.ServerEndChat, Banner: banner})
		})
	})
	source.On(protocol.EventEndChat, func(data json.RawMessage) {
		banner := rawText(data)
		c.do(func() {
			c.apply(session.Event{Kind: session.ServerEndChat, Banner: banner})
		})
	})

	source.On(protocol.EventOnlineCount, func(data json.RawMessage) {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			util.LogDebug("malformed online count: %v", err)
			return
		}
		c.do(func() { c.renderer.Online(n) })
	})
}

// handleSignal routes one negotiation step, dropping anything not tagged
// with the live session token. The responder's activation rides on the
// inbound offer.
func (c *Client) handleSignal(p protocol.SignalPayload) {
	if c.negotiator == nil {
		return
	}
	if !c.machine.LiveToken(p.Room) {
		util.LogDebug("dropping signal for stale room %q", p.Room)
		return
	}
	if err := c.negotiator.HandleSignal(p.Room, p.Data); err != nil {
		util.LogWarning("handle signal: %v", err)
		return
	}
	if p.Data.Type == protocol.SignalOffer && c.machine.Role() == session.RoleResponder {
		c.apply(session.Event{Kind: session.MediaOfferReceived})
	}
}

// rawText interprets a payload as a display string, tolerating both JSON
// strings and raw banners.
func rawText(data json.RawMessage) string {
	env := protocol.Envelope{Data: data}
	return env.Text()
}

func bannerOrDefault(banner, fallback string) string {
	if banner != "" {
		return banner
	}
	return fallback
}
