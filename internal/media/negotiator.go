package media

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/session"
	"github.com/straychat/straychat/internal/util"
)

// SignalSender forwards one negotiation step to the signaling channel,
// tagged with the session token it belongs to.
type SignalSender interface {
	SendSignal(token string, data protocol.SignalData) error
}

// Negotiator manages one peer connection per session: offer/answer keyed by
// role, candidate buffering until a remote description exists, and teardown
// when the session ends. Pion callbacks arrive on their own goroutines, so
// all mutable fields sit behind one mutex.
type Negotiator struct {
	factory Factory
	sender  SignalSender

	mu      sync.Mutex
	local   *LocalMedia
	sink    io.Writer
	pc      PeerConn
	phase   Phase
	token   string
	role    session.Role
	pending []webrtc.ICECandidateInit
	offered bool

	onPhase  func(Phase)
	onNotice func(string)
}

// NewNegotiator creates a negotiator with no live connection.
func NewNegotiator(factory Factory, sender SignalSender) *Negotiator {
	return &Negotiator{factory: factory, sender: sender, phase: PhaseNone}
}

// OnPhase registers a hook called after every phase change. The hook must
// not call back into the negotiator synchronously.
func (n *Negotiator) OnPhase(fn func(Phase)) { n.onPhase = fn }

// OnNotice registers a hook for user-visible recoverable notices
// (device denial, failed peer connection).
func (n *Negotiator) OnNotice(fn func(string)) { n.onNotice = fn }

// SetRemoteSink directs depacketized remote track payloads to w.
// A nil sink discards them.
func (n *Negotiator) SetRemoteSink(w io.Writer) {
	n.mu.Lock()
	n.sink = w
	n.mu.Unlock()
}

// Phase returns the current negotiation phase.
func (n *Negotiator) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// AcquireLocal builds the local track pair if it is not already held.
// The tracks survive session teardown; only Close releases them.
func (n *Negotiator) AcquireLocal() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.local != nil {
		return nil
	}
	local, err := AcquireLocal()
	if err != nil {
		n.notify(fmt.Sprintf("Cannot access camera/microphone: %v", err))
		return err
	}
	n.local = local
	if n.phase == PhaseNone {
		n.setPhase(PhaseLocalStreamReady)
	}
	return nil
}

// Begin starts negotiation for a fresh session. The initiator creates and
// sends the offer immediately; the responder waits for the inbound offer.
// Any leftover connection from a previous session is torn down first.
func (n *Negotiator) Begin(token string, role session.Role) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pc != nil {
		n.teardownLocked()
	}
	n.token = token
	n.role = role
	n.offered = false

	if err := n.createLocked(); err != nil {
		return err
	}

	if role != session.RoleInitiator {
		return nil
	}
	return n.sendOfferLocked()
}

// HandleSignal applies one inbound negotiation step. Steps tagged with a
// token other than the live one are dropped silently — they belong to a
// session that no longer exists.
func (n *Negotiator) HandleSignal(token string, data protocol.SignalData) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if token == "" || token != n.token {
		util.LogDebug("dropping %s for stale token %q", data.Type, token)
		return nil
	}

	switch data.Type {
	case protocol.SignalOffer:
		return n.handleOfferLocked(data)
	case protocol.SignalAnswer:
		return n.handleAnswerLocked(data)
	case protocol.SignalICE:
		return n.handleCandidateLocked(data)
	default:
		util.LogDebug("unknown signal type %q", data.Type)
		return nil
	}
}

// Teardown closes the connection and resets to PhaseNone, keeping the local
// tracks for the next session. Safe to call any number of times.
func (n *Negotiator) Teardown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.teardownLocked()
}

// Close tears down and releases everything; used when the process exits.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.teardownLocked()
	n.local = nil
	n.setPhase(PhaseClosed)
}

// ---------------------------------------------------------------------------
// Internals (all require n.mu held)
// ---------------------------------------------------------------------------

// createLocked builds the peer connection, attaches local tracks, and wires
// the callbacks. The session token is captured by value in each closure:
// a connection outliving its session keeps tagging the dead token, which the
// stale guard then discards end to end.
func (n *Negotiator) createLocked() error {
	pc, err := n.factory()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	if n.local != nil {
		for _, track := range n.local.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return fmt.Errorf("attach %s track: %w", track.Kind(), err)
			}
		}
	}

	token := n.token

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init, _ := json.Marshal(c.ToJSON())
		if err := n.sender.SendSignal(token, protocol.SignalData{
			Type:      protocol.SignalICE,
			Candidate: string(init),
		}); err != nil {
			util.LogDebug("forward candidate: %v", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogInfo("peer connection state: %s", state)
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.pc != pc {
			return // state change from a torn-down connection
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			n.setPhase(PhaseConnected)
		case webrtc.PeerConnectionStateFailed:
			// Recoverable: the session stays alive, the user decides.
			n.setPhase(PhaseFailed)
			n.notify("Connection failed. Skip to try another stranger.")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogInfo("remote %s track received", track.Kind())
		n.mu.Lock()
		sink := n.sink
		n.mu.Unlock()
		pumpRemote(track, sink)
	})

	n.pc = pc
	n.setPhase(PhaseCreated)
	return nil
}

// sendOfferLocked generates and forwards exactly one offer per session.
func (n *Negotiator) sendOfferLocked() error {
	if n.offered {
		return nil
	}
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	n.offered = true
	n.setPhase(PhaseOfferSent)
	return n.sender.SendSignal(n.token, protocol.SignalData{
		Type: protocol.SignalOffer,
		SDP:  offer.SDP,
	})
}

func (n *Negotiator) handleOfferLocked(data protocol.SignalData) error {
	if n.pc == nil {
		if err := n.createLocked(); err != nil {
			return err
		}
	}
	if err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  data.SDP,
	}); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	n.setPhase(PhaseOfferReceived)
	n.flushCandidatesLocked()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	n.setPhase(PhaseAnswerSent)
	return n.sender.SendSignal(n.token, protocol.SignalData{
		Type: protocol.SignalAnswer,
		SDP:  answer.SDP,
	})
}

func (n *Negotiator) handleAnswerLocked(data protocol.SignalData) error {
	if n.phase != PhaseOfferSent {
		// Glare or duplicate; not an error.
		util.LogDebug("ignoring answer in phase %s", n.phase)
		return nil
	}
	if err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  data.SDP,
	}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	n.setPhase(PhaseAnswerReceived)
	n.flushCandidatesLocked()
	return nil
}

// handleCandidateLocked applies a candidate, or buffers it until a remote
// description exists. Individual add failures are warnings only.
func (n *Negotiator) handleCandidateLocked(data protocol.SignalData) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(data.Candidate), &init); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	if n.pc == nil || n.pc.RemoteDescription() == nil {
		n.pending = append(n.pending, init)
		return nil
	}
	if err := n.pc.AddICECandidate(init); err != nil {
		util.LogWarning("add candidate: %v", err)
	}
	return nil
}

func (n *Negotiator) flushCandidatesLocked() {
	for _, init := range n.pending {
		if err := n.pc.AddICECandidate(init); err != nil {
			util.LogWarning("add buffered candidate: %v", err)
		}
	}
	n.pending = nil
}

func (n *Negotiator) teardownLocked() {
	if n.pc != nil {
		n.pc.Close()
		n.pc = nil
	}
	n.pending = nil
	n.token = ""
	n.role = session.RoleNone
	n.offered = false
	if n.phase != PhaseNone {
		n.setPhase(PhaseNone)
	}
}

func (n *Negotiator) setPhase(p Phase) {
	n.phase = p
	if n.onPhase != nil {
		n.onPhase(p)
	}
}

func (n *Negotiator) notify(text string) {
	if n.onNotice != nil {
		n.onNotice(text)
	}
}
