package main

import (
	"fmt"

	"repairworks.ai/internal/protocol"
)

// pendingTicks is how long a sent toggle is assumed in flight.
const pendingTicks = 3

type repairBot struct {
	thresholdPct int
	helpAllies   bool

	// pending maps building id to the tick a toggle was sent.
	pending map[string]uint64
}

func newRepairBot(thresholdPct int, helpAllies bool) *repairBot {
	if thresholdPct <= 0 || thresholdPct > 100 {
		thresholdPct = 90
	}
	return &repairBot{thresholdPct: thresholdPct, helpAllies: helpAllies, pending: map[string]uint64{}}
}

// decide joins repairs on damaged buildings we may repair and leaves them once
// the bot runs out of cash. It never toggles a building twice while in flight.
func (b *repairBot) decide(obs *protocol.ObsMsg) (protocol.ActMsg, bool) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            obs.Tick,
		AgentID:         obs.AgentID,
	}
	if obs.Self.WinState != "" && obs.Self.WinState != "UNDECIDED" {
		return act, false
	}

	allies := map[string]bool{obs.AgentID: true}
	if b.helpAllies {
		for id, stance := range obs.Self.Stances {
			if stance == "ALLY" {
				allies[id] = true
			}
		}
	}

	for _, bo := range obs.Buildings {
		if !bo.Repairable || !allies[bo.Owner] || bo.MaxHP <= 0 {
			continue
		}
		if t, ok := b.pending[bo.ID]; ok && obs.Tick < t+pendingTicks {
			continue
		}
		delete(b.pending, bo.ID)

		member := contains(bo.Repairers, obs.AgentID)
		damaged := bo.HP*100 < bo.MaxHP*b.thresholdPct
		want := damaged && obs.Self.Cash > 0
		if member == want {
			continue
		}
		act.Instants = append(act.Instants, protocol.InstantReq{
			ID:       fmt.Sprintf("I_repair_%s_%d", bo.ID, obs.Tick),
			Type:     protocol.InstantToggleRepair,
			TargetID: bo.ID,
		})
		b.pending[bo.ID] = obs.Tick
		if len(act.Instants) >= 32 {
			break
		}
	}
	return act, len(act.Instants) > 0
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
