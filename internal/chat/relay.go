// Package chat keeps the transcript of the current session and attributes
// each line to its author. Attribution is by client id: the server relays
// messages to both ends, so the relay must recognize its own echoes.
package chat

import (
	"errors"
	"sync"

	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/util"
)

// ErrNotActive is returned when a send is attempted outside an active
// session. Callers surface it as a status line, not a fault.
var ErrNotActive = errors.New("no active chat session")

// Sender says who produced a transcript line.
type Sender int

const (
	Self Sender = iota
	Partner
	System
)

func (s Sender) String() string {
	switch s {
	case Self:
		return "you"
	case Partner:
		return "stranger"
	case System:
		return "system"
	default:
		return "unknown"
	}
}

// Line is one entry of the session transcript, in arrival order.
type Line struct {
	Sender Sender
	Text   string
}

// Emitter is the outbound half the relay needs from the transport.
type Emitter interface {
	Emit(event string, payload any) error
}

// Relay orders the transcript of one session and gates sends on the
// session being active. It learns the partner's id from the first inbound
// message carrying an id other than its own.
type Relay struct {
	emitter Emitter
	selfID  string

	mu        sync.Mutex
	active    bool
	partnerID string
	lines     []Line
	onLine    func(Line)
}

// NewRelay creates a relay owned by the client identified by selfID.
func NewRelay(emitter Emitter, selfID string) *Relay {
	return &Relay{emitter: emitter, selfID: selfID}
}

// OnLine registers a hook called for every appended line, under the relay
// lock. Hooks must not call back into the relay.
func (r *Relay) OnLine(fn func(Line)) {
	r.mu.Lock()
	r.onLine = fn
	r.mu.Unlock()
}

// SetActive opens or closes the send gate. Closing it does not clear the
// transcript; Reset does.
func (r *Relay) SetActive(active bool) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

// PartnerID returns the partner id learned so far, or "".
func (r *Relay) PartnerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partnerID
}

// Lines returns a copy of the transcript in arrival order.
func (r *Relay) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Send emits a chat message. Nothing is appended locally: the server echoes
// the message back to both ends, so the transcript renders in exactly the
// relay order.
func (r *Relay) Send(text string) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNotActive
	}
	r.mu.Unlock()

	util.Stats.AddSent()
	return r.emitter.Emit(protocol.EventMessageToServer, protocol.MessagePayload{
		ID:  r.selfID,
		Msg: text,
	})
}

// Receive handles one relayed message. Attribution is by id comparison:
// our own echo renders as Self, anything else is the partner, whose id is
// learned on first contact.
func (r *Relay) Receive(msg protocol.MessagePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID != "" && msg.ID == r.selfID {
		r.appendLocked(Line{Sender: Self, Text: msg.Msg})
		return
	}
	if r.partnerID == "" && msg.ID != "" {
		r.partnerID = msg.ID
	}
	util.Stats.AddRecv()
	r.appendLocked(Line{Sender: Partner, Text: msg.Msg})
}

// SystemLine appends a status line to the transcript (disconnect notices,
// moderation confirmations).
func (r *Relay) SystemLine(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(Line{Sender: System, Text: text})
}

// Reset clears the transcript, partner id, and send gate for the next
// session.
func (r *Relay) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.partnerID = ""
	r.lines = nil
}

func (r *Relay) appendLocked(line Line) {
	r.lines = append(r.lines, line)
	if r.onLine != nil {
		r.onLine(line)
	}
}
