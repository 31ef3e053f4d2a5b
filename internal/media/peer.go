// Package media owns the WebRTC peer connection and its SDP/ICE lifecycle
// for video sessions. It is strictly subordinate to the session machine: it
// never initiates a session transition, only reports its own phase.
package media

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN — pairs that need a
// relay fall back to the recoverable connection-failed notice.
var stunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// PeerConn is the slice of *webrtc.PeerConnection the negotiator drives.
// Narrowing it to an interface keeps the negotiation logic testable without
// a network stack.
type PeerConn interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(func(*webrtc.ICECandidate))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// Factory creates a fresh peer connection for each session.
type Factory func() (PeerConn, error)

// NewPeerConn is the default Factory, configured with Google STUN servers.
func NewPeerConn() (PeerConn, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}
