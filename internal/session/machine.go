package session

// Machine holds all session-scoped fields behind one owner. It is not
// safe for concurrent use: the owning event loop applies every event from a
// single goroutine, which is what makes the transition guards trustworthy.
type Machine struct {
	mode      Mode
	state     State
	token     string
	role      Role
	partnerID string
}

// New creates an idle machine for the given conversation mode.
func New(mode Mode) *Machine {
	return &Machine{mode: mode, state: Idle}
}

func (m *Machine) Mode() Mode        { return m.mode }
func (m *Machine) State() State      { return m.state }
func (m *Machine) Token() string     { return m.token }
func (m *Machine) Role() Role        { return m.role }
func (m *Machine) PartnerID() string { return m.partnerID }

// LiveToken reports whether an inbound token belongs to the current session.
// Anything tagged with a non-live token is a stale leftover from a previous
// pairing and must be dropped without a state change.
func (m *Machine) LiveToken(token string) bool {
	if token == "" || token != m.token {
		return false
	}
	switch m.state {
	case Matched, Active, Ending:
		return true
	default:
		return false
	}
}

// LearnPartner records the partner identity the first time it is observed.
// The text protocol never announces the partner eagerly; it is inferred from
// the first relayed message that is not our own.
func (m *Machine) LearnPartner(id string) {
	if m.partnerID == "" && id != "" {
		m.partnerID = id
	}
}

// Apply feeds one event through the transition table and returns the effects
// the caller must execute. Events invalid for the current state return nil:
// precondition faults are silently ignored per the lifecycle contract.
func (m *Machine) Apply(ev Event) []Effect {
	switch ev.Kind {
	case UserStart:
		if m.state != Idle {
			return nil
		}
		m.state = Searching
		return []Effect{
			effect(EffectEmitFind),
			effectText(EffectStatus, "Searching for a stranger..."),
		}

	case ServerSearching:
		if m.state != Searching {
			return nil
		}
		banner := ev.Banner
		if banner == "" {
			banner = "Searching for a stranger..."
		}
		return []Effect{effectText(EffectStatus, banner)}

	case ServerMatched:
		if m.state != Searching {
			// Duplicate or late match announcement; the live session wins.
			return nil
		}
		m.token = ev.Token
		m.role = ev.Role

		if m.mode == ModeText {
			// No media phase: a text match is immediately active.
			m.state = Active
			return []Effect{
				effectText(EffectStatus, "Connected to a stranger!"),
				effectText(EffectSystemLine, bannerOr(ev.Banner, "Connected to a stranger!")),
				effect(EffectInputEnabled),
			}
		}

		m.state = Matched
		return []Effect{
			effect(EffectStartMedia),
			effectText(EffectStatus, "Connected! Starting video..."),
			effectText(EffectSystemLine, bannerOr(ev.Banner, "Connected to a stranger!")),
		}

	case MediaOfferSent:
		if m.state != Matched || m.role != RoleInitiator {
			return nil
		}
		m.state = Active
		return []Effect{
			effect(EffectInputEnabled),
			effectText(EffectStatus, "Connected."),
		}

	case MediaOfferReceived:
		if m.state != Matched || m.role != RoleResponder {
			return nil
		}
		m.state = Active
		return []Effect{
			effect(EffectInputEnabled),
			effectText(EffectStatus, "Connected."),
		}

	case UserStop:
		switch m.state {
		case Active:
			// Something to lose: ask first.
			m.state = Ending
			return []Effect{effect(EffectConfirmExit)}
		case Searching, Matched:
			// Nothing worth confirming; leave immediately.
			return m.terminate(terminateOpts{emitStop: true, status: "Stopped."})
		default:
			return nil
		}

	case UserConfirmExit:
		if m.state != Ending {
			return nil
		}
		return m.terminate(terminateOpts{emitStop: true, status: "Stopped. Click start to find another stranger."})

	case UserCancelExit:
		if m.state != Ending {
			return nil
		}
		m.state = Active
		return []Effect{effect(EffectDismissExit)}

	case UserSkip:
		switch m.state {
		case Searching, Matched, Active, Ending:
			return m.terminate(terminateOpts{
				emitStop:    true,
				autoRestart: true,
				status:      "Finding the next stranger...",
			})
		default:
			return nil
		}

	case ServerPartnerGone, ServerEndChat, TransportLost:
		// Remote termination always wins over pending user actions, but a
		// second delivery for an already-dead session must not re-run
		// teardown: the guard is on state, not on event count.
		switch m.state {
		case Idle, Terminated:
			return nil
		}
		return m.terminate(terminateOpts{
			banner: bannerOr(ev.Banner, "Stranger has disconnected."),
			status: "Stopped. Click start to find another stranger.",
		})

	case CleanupDone:
		if m.state != Terminated {
			return nil
		}
		m.state = Idle
		return []Effect{effectText(EffectStatus, "Ready. Click start to find a stranger.")}

	case UserAutoRestart:
		// Re-enter the queue on behalf of a completed skip. Valid straight
		// from Terminated or after the automatic reset to Idle.
		if m.state != Idle && m.state != Terminated {
			return nil
		}
		m.state = Searching
		return []Effect{
			effect(EffectEmitFind),
			effectText(EffectStatus, "Searching for a stranger..."),
		}
	}

	return nil
}

type terminateOpts struct {
	emitStop    bool
	autoRestart bool
	banner      string
	status      string
}

// terminate is the single exit path for every way a session can end. Session
// fields are cleared here so late events carrying the old token fail the
// LiveToken check from this point on.
func (m *Machine) terminate(opts terminateOpts) []Effect {
	m.state = Terminated
	m.token = ""
	m.role = RoleNone
	m.partnerID = ""

	var effs []Effect
	if opts.emitStop {
		effs = append(effs, effect(EffectEmitStop))
	}
	effs = append(effs,
		effect(EffectTeardown),
		effect(EffectInputDisabled),
		effect(EffectDismissExit),
	)
	if opts.banner != "" {
		effs = append(effs, effectText(EffectSystemLine, opts.banner))
	}
	if opts.status != "" {
		effs = append(effs, effectText(EffectStatus, opts.status))
	}
	if opts.autoRestart {
		effs = append(effs, effect(EffectAutoRestart))
	}
	return append(effs, effect(EffectCleanup))
}

func bannerOr(banner, fallback string) string {
	if banner != "" {
		return banner
	}
	return fallback
}
