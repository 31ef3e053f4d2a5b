package media

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/session"
)

// fakePeer implements PeerConn in memory and records every call.
type fakePeer struct {
	offers     int
	answers    int
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     int
	closed     int

	onICE   func(*webrtc.ICECandidate)
	onState func(webrtc.PeerConnectionState)
}

func (f *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakePeer) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.localDesc = &sd
	return nil
}

func (f *fakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	f.remoteDesc = &sd
	return nil
}

func (f *fakePeer) RemoteDescription() *webrtc.SessionDescription { return f.remoteDesc }

func (f *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePeer) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.tracks++
	return nil, nil
}

func (f *fakePeer) OnICECandidate(fn func(*webrtc.ICECandidate))                 { f.onICE = fn }
func (f *fakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }
func (f *fakePeer) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))      {}
func (f *fakePeer) Close() error                                                { f.closed++; return nil }

// recordingSender captures forwarded signals.
type recordingSender struct {
	sent []struct {
		Token string
		Data  protocol.SignalData
	}
}

func (r *recordingSender) SendSignal(token string, data protocol.SignalData) error {
	r.sent = append(r.sent, struct {
		Token string
		Data  protocol.SignalData
	}{token, data})
	return nil
}

func (r *recordingSender) ofType(t string) int {
	n := 0
	for _, s := range r.sent {
		if s.Data.Type == t {
			n++
		}
	}
	return n
}

func newTestNegotiator(t *testing.T) (*Negotiator, *fakePeer, *recordingSender) {
	t.Helper()
	peer := &fakePeer{}
	sender := &recordingSender{}
	neg := NewNegotiator(func() (PeerConn, error) { return peer, nil }, sender)
	return neg, peer, sender
}

func candidateJSON(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(webrtc.ICECandidateInit{Candidate: "candidate:0 1 udp 1 127.0.0.1 9 typ host"})
	require.NoError(t, err)
	return string(data)
}

func TestInitiatorSendsExactlyOneOffer(t *testing.T) {
	neg, peer, sender := newTestNegotiator(t)

	require.NoError(t, neg.Begin("t1", session.RoleInitiator))
	assert.Equal(t, PhaseOfferSent, neg.Phase())
	assert.Equal(t, 1, peer.offers)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "t1", sender.sent[0].Token)
	assert.Equal(t, protocol.SignalOffer, sender.sent[0].Data.Type)
	assert.Equal(t, "offer-sdp", sender.sent[0].Data.SDP)
}

func TestResponderNeverOffers(t *testing.T) {
	neg, peer, sender := newTestNegotiator(t)

	require.NoError(t, neg.Begin("t1", session.RoleResponder))
	assert.Equal(t, PhaseCreated, neg.Phase())
	assert.Zero(t, peer.offers)
	assert.Empty(t, sender.sent)

	// The inbound offer produces the answer.
	require.NoError(t, neg.HandleSignal("t1", protocol.SignalData{Type: protocol.SignalOffer, SDP: "remote-offer"}))
	assert.Equal(t, PhaseAnswerSent, neg.Phase())
	assert.Equal(t, 1, peer.answers)
	assert.Equal(t, 1, sender.ofType(protocol.SignalAnswer))
	assert.Zero(t, peer.offers)
}

func TestAnswerOnlyAppliedInOfferSent(t *testing.T) {
	neg, peer, _ := newTestNegotiator(t)
	require.NoError(t, neg.Begin("t1", session.RoleInitiator))

	answer := protocol.SignalData{Type: protocol.SignalAnswer, SDP: "remote-answer"}
	require.NoError(t, neg.HandleSignal("t1", answer))
	assert.Equal(t, PhaseAnswerReceived, neg.Phase())
	require.NotNil(t, peer.remoteDesc)
	assert.Equal(t, "remote-answer", peer.remoteDesc.SDP)

	// The same answer again is glare/duplicate: ignored, no state change.
	peer.remoteDesc.SDP = "unchanged"
	require.NoError(t, neg.HandleSignal("t1", answer))
	assert.Equal(t, PhaseAnswerReceived, neg.Phase())
	assert.Equal(t, "unchanged", peer.remoteDesc.SDP)
}

func TestStaleTokenDropped(t *testing.T) {
	neg, peer, _ := newTestNegotiator(t)
	require.NoError(t, neg.Begin("t2", session.RoleInitiator))

	require.NoError(t, neg.HandleSignal("t1", protocol.SignalData{Type: protocol.SignalAnswer, SDP: "old"}))
	assert.Equal(t, PhaseOfferSent, neg.Phase())
	assert.Nil(t, peer.remoteDesc)

	require.NoError(t, neg.HandleSignal("", protocol.SignalData{Type: protocol.SignalAnswer, SDP: "old"}))
	assert.Nil(t, peer.remoteDesc)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	neg, peer, _ := newTestNegotiator(t)
	require.NoError(t, neg.Begin("t1", session.RoleResponder))

	ice := protocol.SignalData{Type: protocol.SignalICE, Candidate: candidateJSON(t)}
	require.NoError(t, neg.HandleSignal("t1", ice))
	require.NoError(t, neg.HandleSignal("t1", ice))
	assert.Empty(t, peer.candidates, "no remote description yet")

	require.NoError(t, neg.HandleSignal("t1", protocol.SignalData{Type: protocol.SignalOffer, SDP: "remote-offer"}))
	assert.Len(t, peer.candidates, 2, "buffer flushed once the offer landed")

	// Further candidates apply immediately.
	require.NoError(t, neg.HandleSignal("t1", ice))
	assert.Len(t, peer.candidates, 3)
}

func TestLocalCandidatesTaggedWithSessionToken(t *testing.T) {
	neg, peer, sender := newTestNegotiator(t)
	require.NoError(t, neg.Begin("t1", session.RoleInitiator))
	require.NotNil(t, peer.onICE)

	peer.onICE(&webrtc.ICECandidate{Foundation: "f", Protocol: webrtc.ICEProtocolUDP})
	require.Equal(t, 1, sender.ofType(protocol.SignalICE))
	assert.Equal(t, "t1", sender.sent[len(sender.sent)-1].Token)

	// End-of-gathering marker is not forwarded.
	peer.onICE(nil)
	assert.Equal(t, 1, sender.ofType(protocol.SignalICE))
}

func TestTeardownIsIdempotentAndResetsPhase(t *testing.T) {
	neg, peer, _ := newTestNegotiator(t)
	require.NoError(t, neg.Begin("t1", session.RoleInitiator))

	neg.Teardown()
	assert.Equal(t, PhaseNone, neg.Phase())
	assert.Equal(t, 1, peer.closed)

	neg.Teardown()
	assert.Equal(t, 1, peer.closed, "second teardown must not re-close")

	// After teardown, signals for the dead session are inert.
	require.NoError(t, neg.HandleSignal("t1", protocol.SignalData{Type: protocol.SignalAnswer, SDP: "late"}))
	assert.Equal(t, PhaseNone, neg.Phase())
}

func TestConnectionFailureIsRecoverableNotice(t *testing.T) {
	neg, peer, _ := newTestNegotiator(t)

	var notices []string
	neg.OnNotice(func(s string) { notices = append(notices, s) })

	require.NoError(t, neg.Begin("t1", session.RoleInitiator))
	require.NotNil(t, peer.onState)

	peer.onState(webrtc.PeerConnectionStateFailed)
	assert.Equal(t, PhaseFailed, neg.Phase())
	require.Len(t, notices, 1)

	// The connection object is still there: failure is not teardown.
	assert.Zero(t, peer.closed)
}

func TestBeginReplacesLeftoverConnection(t *testing.T) {
	first := &fakePeer{}
	second := &fakePeer{}
	peers := []*fakePeer{first, second}
	sender := &recordingSender{}
	neg := NewNegotiator(func() (PeerConn, error) {
		p := peers[0]
		peers = peers[1:]
		return p, nil
	}, sender)

	require.NoError(t, neg.Begin("t1", session.RoleInitiator))
	require.NoError(t, neg.Begin("t2", session.RoleInitiator))

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.offers)
	assert.Equal(t, "t2", sender.sent[len(sender.sent)-1].Token)
}
