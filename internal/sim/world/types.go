package world

import (
	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/repair"
)

type JoinRequest struct {
	Name    string
	Faction string
	Out     chan []byte
	Resp    chan JoinResponse
}

type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	Catalogs []protocol.CatalogMsg
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

type RecordedJoin struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Faction string `json:"faction,omitempty"`
}

type RecordedAction struct {
	AgentID string          `json:"agent_id"`
	Act     protocol.ActMsg `json:"act"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Admin   []AdminOp        `json:"admin,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	// Repairs lists only cycles that ran this tick.
	Repairs []repair.Cycle `json:"repairs,omitempty"`
	Digest  string         `json:"digest"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "DAMAGE"
	Target  string         `json:"target,omitempty"`
	From    int            `json:"from"`
	To      int            `json:"to"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Audit actions.
const (
	AuditDamage        = "DAMAGE"
	AuditDestroyed     = "DESTROYED"
	AuditRepairStarted = "REPAIR_STARTED"
	AuditRepairEvicted = "REPAIR_EVICTED"
	AuditStance        = "SET_STANCE"
	AuditWinState      = "WIN_STATE"
	AuditCash          = "SET_CASH"
	AuditSpawn         = "SPAWN_BUILDING"
)
