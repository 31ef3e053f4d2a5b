// Package protocol defines the signaling event vocabulary and the JSON
// envelope exchanged with the matchmaking server. The wire format is a flat
// `{"event": ..., "data": ...}` object; payload shapes mirror what the server
// emits, field for field.
package protocol

// Client → server events.
const (
	EventFind            = "find"               // enter the queue (video mode, FindPayload)
	EventStart           = "start"              // enter the queue (text mode, payload is the client id)
	EventStop            = "stop"               // leave the queue or end the current session
	EventMessageToServer = "newMessageToServer" // outbound chat text
	EventTyping          = "typing"             // typing preview or fixed label
	EventDoneTyping      = "doneTyping"
	EventBlock           = "block"
	EventReport          = "report"
	EventGetOnlineCount  = "getOnlineCount"
)

// Server → client events.
const (
	EventSearching            = "searching"
	EventWaiting              = "waiting"
	EventChatStart            = "chatStart" // text mode match, payload is a banner string
	EventMatched              = "matched"   // video mode match, MatchedPayload
	EventMessageToClient      = "newMessageToClient"
	EventStrangerTyping       = "strangerIsTyping"
	EventStrangerDoneTyping   = "strangerIsDoneTyping"
	EventStrangerDisconnected = "strangerDisconnected"
	EventGoodBye              = "goodBye"
	EventEndChat              = "endChat"
	EventOnlineCount          = "numberOfOnline"
)

// EventSignal flows both ways and carries the WebRTC negotiation envelope.
const EventSignal = "signal"

// Signal data types inside a SignalPayload.
const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
	SignalICE    = "ice"
)
