package repair

type fakeBuilding struct {
	id    string
	owner string
	value int
	hp    int
	maxHP int

	cfg Config
	sub *Subscription

	damage []int
}

func newFakeBuilding(cfg Config, hp, maxHP, value int) *fakeBuilding {
	return &fakeBuilding{id: "B1", owner: "P1", value: value, hp: hp, maxHP: maxHP, cfg: cfg, sub: NewSubscription()}
}

func (b *fakeBuilding) ID() string             { return b.id }
func (b *fakeBuilding) Owner() string          { return b.owner }
func (b *fakeBuilding) AssessedValue() int     { return b.value }
func (b *fakeBuilding) HP() int                { return b.hp }
func (b *fakeBuilding) MaxHP() int             { return b.maxHP }
func (b *fakeBuilding) FullyHealed() bool      { return b.hp >= b.maxHP }
func (b *fakeBuilding) RepairConfig() Config   { return b.cfg }
func (b *fakeBuilding) Repairs() *Subscription { return b.sub }

func (b *fakeBuilding) InflictDamage(amount int) {
	b.damage = append(b.damage, amount)
	b.hp -= amount
	if b.hp > b.maxHP {
		b.hp = b.maxHP
	}
	if b.hp < 0 {
		b.hp = 0
	}
}

type fakeWallet struct {
	cash  int
	debts []int
}

func (w *fakeWallet) TryDebit(amount int) bool {
	if w.cash < amount {
		return false
	}
	w.cash -= amount
	w.debts = append(w.debts, amount)
	return true
}

type fakeLedgers map[string]*fakeWallet

func (l fakeLedgers) LedgerFor(agentID string) Ledger {
	w, ok := l[agentID]
	if !ok {
		return nil
	}
	return w
}

type fakeRelations struct {
	hostile map[string]bool // not friendly, not allied
	neutral map[string]bool // friendly for toggling, but not allied
	decided map[string]bool

	// queries records every (owner, agent) pair asked about.
	queries [][2]string
}

func newFakeRelations() *fakeRelations {
	return &fakeRelations{hostile: map[string]bool{}, neutral: map[string]bool{}, decided: map[string]bool{}}
}

func (r *fakeRelations) IsFriendly(owner, agentID string) bool {
	r.queries = append(r.queries, [2]string{owner, agentID})
	return owner == agentID || !r.hostile[agentID]
}

func (r *fakeRelations) IsAllied(owner, agentID string) bool {
	r.queries = append(r.queries, [2]string{owner, agentID})
	return owner == agentID || (!r.hostile[agentID] && !r.neutral[agentID])
}

func (r *fakeRelations) IsOutcomeUndecided(agentID string) bool { return !r.decided[agentID] }

type started struct {
	structureID, agentID, style string
}

type recordingNotifier struct{ events []started }

func (n *recordingNotifier) RepairStarted(structureID, agentID, style string) {
	n.events = append(n.events, started{structureID, agentID, style})
}

type fixture struct {
	b   *fakeBuilding
	l   fakeLedgers
	rel *fakeRelations
	n   *recordingNotifier
	e   *Engine
}

func newFixture(cfg Config, hp, maxHP, value int) *fixture {
	f := &fixture{
		b:   newFakeBuilding(cfg, hp, maxHP, value),
		l:   fakeLedgers{},
		rel: newFakeRelations(),
		n:   &recordingNotifier{},
	}
	f.e = NewEngine(Deps{Ledgers: f.l, Relations: f.rel, Notifier: f.n})
	return f
}

func (f *fixture) fund(agentID string, cash int) *fakeWallet {
	w := &fakeWallet{cash: cash}
	f.l[agentID] = w
	return w
}
