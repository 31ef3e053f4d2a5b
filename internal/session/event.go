package session

// EventKind names one input to the machine.
type EventKind int

const (
	// User actions.
	UserStart       EventKind = iota // "find a stranger"
	UserStop                         // stop button; confirmation only when Active
	UserConfirmExit                  // confirm the pending exit
	UserCancelExit                   // dismiss the pending exit
	UserSkip                         // end now and requeue automatically (next / moderation)
	UserAutoRestart                  // re-enter the queue after a skip completed

	// Server pushes.
	ServerSearching
	ServerMatched
	ServerPartnerGone
	ServerEndChat

	// Transport.
	TransportLost

	// Media negotiation signals (video mode).
	MediaOfferSent
	MediaOfferReceived

	// Internal: cleanup after Terminated has finished.
	CleanupDone
)

// Event is one abstract input. Token, Role and Banner are only meaningful
// for the kinds that carry them (ServerMatched, ServerSearching, ...).
type Event struct {
	Kind   EventKind
	Token  string
	Role   Role
	Banner string
}

// EffectKind names one side effect the caller must execute after a
// transition. Effects are abstract render/emit instructions; the machine
// never performs them itself.
type EffectKind int

const (
	EffectEmitFind      EffectKind = iota // send find/start to the server
	EffectEmitStop                        // send stop to the server
	EffectStartMedia                      // begin media negotiation for the new session
	EffectTeardown                        // tear down media, chat log, typing state
	EffectStatus                          // update the status line (Text)
	EffectSystemLine                      // append a system line to the chat log (Text)
	EffectConfirmExit                     // show the exit confirmation
	EffectDismissExit                     // hide the exit confirmation
	EffectInputEnabled                    // enable the chat input
	EffectInputDisabled                   // disable the chat input
	EffectAutoRestart                     // after cleanup, re-enter the queue without a user click
	EffectCleanup                         // schedule CleanupDone once teardown has run
)

// Effect is one abstract instruction emitted by a transition.
type Effect struct {
	Kind EffectKind
	Text string
}

func effect(kind EffectKind) Effect             { return Effect{Kind: kind} }
func effectText(kind EffectKind, t string) Effect { return Effect{Kind: kind, Text: t} }
