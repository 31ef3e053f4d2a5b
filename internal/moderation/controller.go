package moderation

import (
	"errors"
	"fmt"

	"github.com/straychat/straychat/internal/protocol"
	"github.com/straychat/straychat/internal/util"
)

// ErrNoPartner is returned when a block or report is attempted before the
// partner's identity is known.
var ErrNoPartner = errors.New("no partner to act on")

// Emitter is the outbound half the controller needs from the transport.
type Emitter interface {
	Emit(event string, payload any) error
}

// Controller runs the block/report flows: persist locally, tell the
// server, and end the session by skipping to the next partner.
type Controller struct {
	store   *Store
	emitter Emitter

	partnerFn func() string
	notify    func(string)
	skip      func()
}

// NewController wires the moderation flows. partnerFn yields the current
// partner id ("" when unknown), notify posts a system line, and skip ends
// the current session the same way the Next action does.
func NewController(store *Store, emitter Emitter, partnerFn func() string, notify func(string), skip func()) *Controller {
	return &Controller{
		store:     store,
		emitter:   emitter,
		partnerFn: partnerFn,
		notify:    notify,
		skip:      skip,
	}
}

// Block records the current partner as blocked, informs the server, and
// skips to the next stranger. Blocking is client-side bookkeeping: the
// server cannot prevent a future rematch.
func (c *Controller) Block() error {
	partner := c.partnerFn()
	if partner == "" {
		return ErrNoPartner
	}
	if _, err := c.store.Add(KindBlock, partner, ""); err != nil {
		return err
	}
	if err := c.emitter.Emit(protocol.EventBlock, protocol.ModerationPayload{ID: partner}); err != nil {
		util.LogWarning("send block: %v", err)
	}
	c.notify("Stranger blocked.")
	c.skip()
	return nil
}

// Report records a report with the given reason, informs the server, and
// skips to the next stranger, same as a block.
func (c *Controller) Report(reason string) error {
	partner := c.partnerFn()
	if partner == "" {
		return ErrNoPartner
	}
	if _, err := c.store.Add(KindReport, partner, reason); err != nil {
		return err
	}
	if err := c.emitter.Emit(protocol.EventReport, protocol.ModerationPayload{ID: partner, Reason: reason}); err != nil {
		util.LogWarning("send report: %v", err)
	}
	c.notify(fmt.Sprintf("Stranger reported: %s", reason))
	c.skip()
	return nil
}
