// Package presence tracks typing state on both ends of a session. Local
// typing is debounced: one "typing" on the first keystroke, one "done" when
// the keyboard has been idle long enough. Remote state is a plain flag
// driven by the server's events.
package presence

import (
	"sync"
	"time"

	"github.com/straychat/straychat/internal/protocol"
)

// DefaultIdleWindow is how long after the last keystroke the partner is
// told we stopped typing.
const DefaultIdleWindow = 1400 * time.Millisecond

// previewLimit caps the draft preview attached to the typing event.
const previewLimit = 250

// Emitter is the outbound half the tracker needs from the transport.
type Emitter interface {
	Emit(event string, payload any) error
}

// Tracker debounces local typing into typing/doneTyping events and mirrors
// the partner's typing state.
type Tracker struct {
	emitter Emitter
	window  time.Duration

	mu           sync.Mutex
	enabled      bool
	localTyping  bool
	remoteTyping bool
	timer        *time.Timer
	onRemote     func(bool)
}

// NewTracker creates a tracker with the given idle window. Zero or negative
// falls back to DefaultIdleWindow.
func NewTracker(emitter Emitter, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultIdleWindow
	}
	return &Tracker{emitter: emitter, window: window}
}

// OnRemote registers a hook called whenever the partner's typing state
// flips, under the tracker lock. Hooks must not call back into the tracker.
func (t *Tracker) OnRemote(fn func(bool)) {
	t.mu.Lock()
	t.onRemote = fn
	t.mu.Unlock()
}

// SetEnabled opens or closes the tracker for the session. Disabling flushes
// a pending doneTyping and clears both flags without notifying the partner,
// who is gone anyway.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if !enabled {
		t.stopTimerLocked()
		t.localTyping = false
		t.setRemoteLocked(false)
	}
}

// Keystroke records one local keystroke with the current draft. The first
// one in a burst emits "typing" carrying a capped preview of the draft;
// every one restarts the idle timer. An empty draft sends a bare event.
func (t *Tracker) Keystroke(draft string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if !t.localTyping {
		t.localTyping = true
		var payload any
		if draft != "" {
			payload = truncateRunes(draft, previewLimit)
		}
		t.emitter.Emit(protocol.EventTyping, payload)
	}
	t.stopTimerLocked()
	t.timer = time.AfterFunc(t.window, t.idle)
}

// Blur forces an immediate doneTyping, as when input focus is lost or a
// message is sent.
func (t *Tracker) Blur() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked()
}

// LocalTyping reports whether a local burst is in progress.
func (t *Tracker) LocalTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.localTyping
}

// RemoteTyping reports the partner's last known typing state.
func (t *Tracker) RemoteTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteTyping
}

// RemoteStarted records the partner's typing event. Repeats are idempotent.
func (t *Tracker) RemoteStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.setRemoteLocked(true)
}

// RemoteStopped records the partner's doneTyping event.
func (t *Tracker) RemoteStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setRemoteLocked(false)
}

// idle fires when the keyboard has been quiet for the whole window.
func (t *Tracker) idle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked()
}

func (t *Tracker) finishLocked() {
	t.stopTimerLocked()
	if !t.localTyping {
		return
	}
	t.localTyping = false
	if t.enabled {
		t.emitter.Emit(protocol.EventDoneTyping, nil)
	}
}

func (t *Tracker) setRemoteLocked(typing bool) {
	if t.remoteTyping == typing {
		return
	}
	t.remoteTyping = typing
	if t.onRemote != nil {
		t.onRemote(typing)
	}
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
