package protocol

// FindPayload enters the matchmaking queue in video mode.
type FindPayload struct {
	Mode      string   `json:"mode"`
	Interests []string `json:"interests"`
}

// MatchedPayload announces a video-mode match. Room is the session token
// correlating all further signaling for this pairing; Initiator decides which
// side creates the media offer.
type MatchedPayload struct {
	Room      string `json:"room"`
	Initiator bool   `json:"initiator"`
}

// SignalPayload is the WebRTC negotiation envelope, tagged with the room
// token so stale messages from a previous pairing can be discarded.
type SignalPayload struct {
	Room string     `json:"room"`
	Data SignalData `json:"data"`
}

// SignalData carries one negotiation step. SDP is set for offer/answer;
// Candidate holds a JSON-encoded ICECandidateInit for ice.
type SignalData struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// MessagePayload is a relayed chat message. ID identifies the original
// sender; the server echoes messages back to both participants.
type MessagePayload struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// ModerationPayload notifies the server of a block or report action.
type ModerationPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}
