package repair

// Structure is the damaged building as seen by the repair engine.
type Structure interface {
	ID() string
	Owner() string
	AssessedValue() int

	HP() int
	MaxHP() int
	FullyHealed() bool
	// InflictDamage applies a signed HP delta; negative amounts heal.
	InflictDamage(amount int)

	RepairConfig() Config
	Repairs() *Subscription
}

type Ledger interface {
	TryDebit(amount int) bool
}

// Ledgers resolves an agent's ledger. A nil Ledger means the agent cannot pay.
type Ledgers interface {
	LedgerFor(agentID string) Ledger
}

type Relations interface {
	IsFriendly(owner, agentID string) bool
	IsAllied(owner, agentID string) bool
	IsOutcomeUndecided(agentID string) bool
}

// Notifier receives fire-and-forget repair-start notifications.
type Notifier interface {
	RepairStarted(structureID, agentID, style string)
}

type NopNotifier struct{}

func (NopNotifier) RepairStarted(string, string, string) {}
