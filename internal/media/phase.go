package media

// Phase is the negotiation status of the current peer connection. Owned
// exclusively by the Negotiator; everyone else reads it.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseLocalStreamReady
	PhaseCreated
	PhaseOfferSent
	PhaseOfferReceived
	PhaseAnswerSent
	PhaseAnswerReceived
	PhaseConnected
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseLocalStreamReady:
		return "local-stream-ready"
	case PhaseCreated:
		return "created"
	case PhaseOfferSent:
		return "offer-sent"
	case PhaseOfferReceived:
		return "offer-received"
	case PhaseAnswerSent:
		return "answer-sent"
	case PhaseAnswerReceived:
		return "answer-received"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
