package world

import (
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/repair"
)

// Building is a placed structure. Its HP and repair subscription are mutated
// only from the world loop goroutine.
type Building struct {
	id    string
	def   catalogs.StructureDef
	owner string
	hp    int

	// nil for types without a repair profile.
	repairs *repair.Subscription

	// onHPChange observes every InflictDamage call, heals included.
	onHPChange func(b *Building, from, to int)
}

var _ repair.Structure = (*Building)(nil)

func newBuilding(id string, def catalogs.StructureDef, owner string, hp int) *Building {
	b := &Building{id: id, def: def, owner: owner, hp: hp}
	if b.hp > def.MaxHP {
		b.hp = def.MaxHP
	}
	if b.hp < 0 {
		b.hp = 0
	}
	if def.Repairable != nil {
		b.repairs = repair.NewSubscription()
	}
	return b
}

func (b *Building) ID() string         { return b.id }
func (b *Building) Type() string       { return b.def.ID }
func (b *Building) Owner() string      { return b.owner }
func (b *Building) AssessedValue() int { return b.def.SellValue() }
func (b *Building) HP() int            { return b.hp }
func (b *Building) MaxHP() int         { return b.def.MaxHP }
func (b *Building) FullyHealed() bool  { return b.hp >= b.def.MaxHP }
func (b *Building) Destroyed() bool    { return b.hp <= 0 }
func (b *Building) Repairable() bool   { return b.def.Repairable != nil }

func (b *Building) Repairs() *repair.Subscription { return b.repairs }

func (b *Building) RepairConfig() repair.Config {
	if b.def.Repairable == nil {
		return repair.Config{}
	}
	return *b.def.Repairable
}

// InflictDamage applies a signed HP delta clamped to [0, MaxHP].
func (b *Building) InflictDamage(amount int) {
	from := b.hp
	to := from - amount
	if to > b.def.MaxHP {
		to = b.def.MaxHP
	}
	if to < 0 {
		to = 0
	}
	b.hp = to
	if b.onHPChange != nil {
		b.onHPChange(b, from, to)
	}
}
