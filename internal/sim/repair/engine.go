package repair

// Deps are the collaborators the engine consults on every call.
type Deps struct {
	Ledgers   Ledgers
	Relations Relations
	Notifier  Notifier
}

// Engine runs cooperative repairs. It holds no per-building state; that lives
// in each building's Subscription. Not safe for concurrent use: callers must
// serialize Toggle and Tick for a given building (the world loop does).
type Engine struct {
	ledgers   Ledgers
	relations Relations
	notifier  Notifier
}

func NewEngine(d Deps) *Engine {
	n := d.Notifier
	if n == nil {
		n = NopNotifier{}
	}
	return &Engine{ledgers: d.Ledgers, relations: d.Relations, notifier: n}
}

type EvictReason string

const (
	EvictOutcomeDecided EvictReason = "OUTCOME_DECIDED"
	EvictNotAllied      EvictReason = "NOT_ALLIED"
	EvictUnpaid         EvictReason = "UNPAID"
)

type Eviction struct {
	AgentID string      `json:"agent_id"`
	Reason  EvictReason `json:"reason"`
}

type Charge struct {
	AgentID string `json:"agent_id"`
	Amount  int    `json:"amount"`
}

// Cycle describes what one Tick did. Ran is false while idle or counting down.
type Cycle struct {
	StructureID string     `json:"structure_id"`
	Ran         bool       `json:"ran"`
	Evicted     []Eviction `json:"evicted,omitempty"`
	Charges     []Charge   `json:"charges,omitempty"`
	Cost        int        `json:"cost"`
	Healed      int        `json:"healed"`
	Aborted     bool       `json:"aborted,omitempty"`
	Completed   bool       `json:"completed,omitempty"`
}

func (e *Engine) IsRepairing(st Structure, agentID string) bool {
	return st.Repairs().Contains(agentID)
}

// Toggle adds or removes agentID as a repairer of st. Requests from unfriendly
// agents, or made while the building is at capacity, are ignored silently.
func (e *Engine) Toggle(st Structure, agentID string) {
	sub := st.Repairs()
	if sub == nil || agentID == "" {
		return
	}
	if sub.remove(agentID) {
		return
	}
	if !e.relations.IsFriendly(st.Owner(), agentID) {
		return
	}
	cfg := st.RepairConfig()
	if sub.Len() >= cfg.MaxRepairers {
		return
	}
	sub.add(agentID)
	e.notifier.RepairStarted(st.ID(), agentID, cfg.IndicatorStyle)
}

// Tick advances st's repair by one simulation tick.
func (e *Engine) Tick(st Structure) Cycle {
	cyc := Cycle{StructureID: st.ID()}
	sub := st.Repairs()
	if sub.Len() == 0 {
		return cyc
	}
	if sub.countdown > 0 {
		sub.countdown--
		return cyc
	}
	cyc.Ran = true
	cfg := st.RepairConfig()

	// Iterate a copy: removals must not shift unvisited members.
	for _, id := range sub.Members() {
		switch {
		case !e.relations.IsOutcomeUndecided(id):
			sub.remove(id)
			cyc.Evicted = append(cyc.Evicted, Eviction{AgentID: id, Reason: EvictOutcomeDecided})
		case !e.relations.IsAllied(st.Owner(), id):
			sub.remove(id)
			cyc.Evicted = append(cyc.Evicted, Eviction{AgentID: id, Reason: EvictNotAllied})
		}
	}
	// Unlike the debit path this is not mandated by the cycle steps, which
	// would heal a full step with nobody paying. Abort the same way instead.
	if sub.Len() == 0 {
		cyc.Aborted = true
		sub.countdown = 1
		return cyc
	}

	maxHP := st.MaxHP()
	hp := min(cfg.RepairStep, maxHP-st.HP())
	cost := Cost(hp, cfg.RepairPercent, st.AssessedValue(), maxHP)
	cyc.Cost = cost

	for _, id := range sub.Members() {
		if e.debit(id, cost) {
			cyc.Charges = append(cyc.Charges, Charge{AgentID: id, Amount: cost})
			continue
		}
		sub.remove(id)
		cyc.Evicted = append(cyc.Evicted, Eviction{AgentID: id, Reason: EvictUnpaid})
		if sub.Len() == 0 {
			cyc.Aborted = true
			sub.countdown = 1
			return cyc
		}
	}

	extra := Extra(hp, cfg.ExtraRepairPercent, sub.Len())
	hp = min(cfg.RepairStep+extra, maxHP-st.HP())
	st.InflictDamage(-hp)
	cyc.Healed = hp

	if st.FullyHealed() {
		sub.clear()
		cyc.Completed = true
		return cyc
	}
	sub.countdown = cfg.RepairInterval
	return cyc
}

func (e *Engine) debit(agentID string, amount int) bool {
	if e.ledgers == nil {
		return false
	}
	l := e.ledgers.LedgerFor(agentID)
	if l == nil {
		return false
	}
	return l.TryDebit(amount)
}

// Cost is the per-repairer charge for healing hp units of a building worth
// value: max(1, floor(hp*percent*value / (maxHP*100))). The evaluation order
// is part of the rules and must not be rearranged.
func Cost(hp, percent, value, maxHP int) int {
	den := int64(maxHP) * 100
	if den <= 0 {
		return 1
	}
	c := int64(hp) * int64(percent) * int64(value) / den
	if c < 1 {
		return 1
	}
	return int(c)
}

// Extra is the bonus HP granted for repairers beyond the first. The percent is
// divided by 100 before multiplying, so any percent below 100 yields zero.
func Extra(hp, extraPercent, repairers int) int {
	if repairers <= 1 {
		return 0
	}
	return hp * (extraPercent / 100) * (repairers - 1)
}
