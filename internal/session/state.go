// Package session owns the conversation lifecycle. The Machine is the single
// source of truth for "what state are we in": every user action and every
// server push is expressed as an Event, applied on one logical thread, and
// answered with a list of Effects for the caller to execute. The machine
// itself never touches sockets, media, or rendering.
package session

// State is the conversation lifecycle state.
type State int

const (
	Idle State = iota
	Searching
	Matched
	Active
	Ending
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Matched:
		return "matched"
	case Active:
		return "active"
	case Ending:
		return "ending"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Role decides which side originates the media offer. It is fixed at match
// time and never changes during a session.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "none"
	}
}

// Mode selects the conversation variant. Text mode has no media phase:
// a match goes straight to Active.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVideo Mode = "video"
)
