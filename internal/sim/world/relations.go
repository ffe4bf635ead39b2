package world

import (
	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/repair"
)

// worldRelations answers eligibility questions from the agent's side: what
// matters is how the repairer regards the owner, not the other way round.
type worldRelations struct{ w *World }

// IsFriendly is the toggle-time check: the owner's buildings appear friendly
// to an agent that holds ALLY toward the owner.
func (r worldRelations) IsFriendly(owner, agentID string) bool {
	return r.regardsAsAlly(agentID, owner)
}

// IsAllied is re-checked every cycle; an agent that drops ALLY is evicted.
func (r worldRelations) IsAllied(owner, agentID string) bool {
	return r.regardsAsAlly(agentID, owner)
}

func (r worldRelations) regardsAsAlly(agentID, owner string) bool {
	if owner == agentID {
		return owner != ""
	}
	p := r.w.players[agentID]
	if p == nil {
		return false
	}
	return p.StanceToward(owner) == StanceAlly
}

func (r worldRelations) IsOutcomeUndecided(agentID string) bool {
	p := r.w.players[agentID]
	return p != nil && p.WinState == WinUndecided
}

type worldLedgers struct{ w *World }

func (l worldLedgers) LedgerFor(agentID string) repair.Ledger {
	p := l.w.players[agentID]
	if p == nil {
		return nil
	}
	return p
}

// worldNotifier turns repair starts into an OBS event for the repairer.
type worldNotifier struct{ w *World }

func (n worldNotifier) RepairStarted(structureID, agentID, style string) {
	w := n.w
	nowTick := w.tick.Load()
	faction := w.cfg.DefaultFaction
	if b := w.buildings[structureID]; b != nil {
		if owner := w.players[b.owner]; owner != nil && owner.Faction != "" {
			faction = owner.Faction
		}
	}
	if p := w.players[agentID]; p != nil {
		p.AddEvent(protocol.Event{
			"t":        nowTick,
			"type":     "REPAIR_STARTED",
			"building": structureID,
			"style":    style,
			"faction":  faction,
		})
	}
	w.audit(AuditEntry{
		Tick:    nowTick,
		Actor:   agentID,
		Action:  AuditRepairStarted,
		Target:  structureID,
		Details: map[string]any{"style": style, "faction": faction},
	})
}
