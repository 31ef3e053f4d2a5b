package app

import (
	"github.com/straychat/straychat/internal/media"
	"github.com/straychat/straychat/internal/protocol"
)

// NewSignalSender adapts the transport into the negotiator's outbound
// channel, wrapping each step in a room-tagged signal payload.
func NewSignalSender(w Wire) media.SignalSender {
	return signalSender{w: w}
}

type signalSender struct{ w Wire }

func (s signalSender) SendSignal(token string, data protocol.SignalData) error {
	return s.w.Emit(protocol.EventSignal, protocol.SignalPayload{Room: token, Data: data})
}
