package world

import "repairworks.ai/internal/protocol"

type instantHandler func(w *World, p *Player, inst protocol.InstantReq, nowTick uint64)

var instantDispatch = map[string]instantHandler{
	protocol.InstantToggleRepair: handleToggleRepair,
	protocol.InstantSetStance:    handleSetStance,
	protocol.InstantSurrender:    handleSurrender,
}

func (w *World) applyAct(p *Player, act protocol.ActMsg, nowTick uint64) {
	// Staleness check: accept only [now-2, now].
	if act.Tick+2 < nowTick || act.Tick > nowTick {
		p.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrStale, "act tick out of range"))
		return
	}
	for _, inst := range act.Instants {
		if h := instantDispatch[inst.Type]; h != nil {
			h(w, p, inst, nowTick)
			continue
		}
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "unknown instant type"))
	}
}

// handleToggleRepair always reports success for a repairable target; whether
// the toggle took effect is visible only through the building's repairers.
func handleToggleRepair(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	b := w.buildings[inst.TargetID]
	if b == nil {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "building not found"))
		return
	}
	if !b.Repairable() {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "building is not repairable"))
		return
	}
	w.repair.Toggle(b, p.ID)
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", ""))
}

func handleSetStance(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	if !validStance(inst.Stance) {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrBadRequest, "bad stance"))
		return
	}
	if inst.TargetID == p.ID {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "cannot set stance toward self"))
		return
	}
	if w.players[inst.TargetID] == nil {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrInvalidTarget, "player not found"))
		return
	}
	w.setStance(nowTick, p, inst.TargetID, inst.Stance)
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", ""))
}

func handleSurrender(w *World, p *Player, inst protocol.InstantReq, nowTick uint64) {
	if p.WinState != WinUndecided {
		p.AddEvent(actionResult(nowTick, inst.ID, false, protocol.ErrNoPermission, "outcome already decided"))
		return
	}
	w.setWinState(nowTick, p, WinLost)
	p.AddEvent(actionResult(nowTick, inst.ID, true, "", ""))
}

func (w *World) setStance(nowTick uint64, p *Player, target, stance string) {
	prev := p.StanceToward(target)
	p.setStance(target, stance)
	w.audit(AuditEntry{
		Tick:    nowTick,
		Actor:   p.ID,
		Action:  AuditStance,
		Target:  target,
		Details: map[string]any{"from": prev, "to": stance},
	})
}

func (w *World) setWinState(nowTick uint64, p *Player, state string) {
	prev := p.WinState
	p.WinState = state
	w.audit(AuditEntry{
		Tick:    nowTick,
		Actor:   p.ID,
		Action:  AuditWinState,
		Target:  p.ID,
		Details: map[string]any{"from": prev, "to": state},
	})
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	e := protocol.Event{
		"t":    tick,
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}
