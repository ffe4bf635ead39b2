package world

import (
	"context"
	"errors"
	"fmt"
)

// Admin operation kinds.
const (
	AdminSpawnBuilding = "SPAWN_BUILDING"
	AdminDamage        = "DAMAGE"
	AdminSetCash       = "SET_CASH"
	AdminSetWinState   = "SET_WIN_STATE"
	AdminSetStance     = "SET_STANCE"
)

// AdminOp is an operator-issued state change. Accepted ops are recorded in the
// tick log so replays reproduce them.
type AdminOp struct {
	Kind string `json:"kind"`

	// SPAWN_BUILDING: Type, Owner, optional Amount as starting HP (0 means full).
	// DAMAGE: Target building, Amount (negative heals).
	// SET_CASH: Player, Amount.
	// SET_WIN_STATE: Player, Value.
	// SET_STANCE: Player, Target player, Value.
	Type   string `json:"type,omitempty"`
	Owner  string `json:"owner,omitempty"`
	Player string `json:"player,omitempty"`
	Target string `json:"target,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Value  string `json:"value,omitempty"`
}

type AdminResult struct {
	Tick       uint64 `json:"tick"`
	BuildingID string `json:"building_id,omitempty"`
	HP         int    `json:"hp,omitempty"`
	Destroyed  bool   `json:"destroyed,omitempty"`
	Err        string `json:"error,omitempty"`
}

type adminReq struct {
	Op   AdminOp
	Resp chan AdminResult
}

// maxDamage bounds a single admin damage amount so HP arithmetic cannot overflow.
const maxDamage = 1 << 30

// RequestAdmin queues op for the next tick boundary and waits for its result.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestAdmin(ctx context.Context, op AdminOp) (AdminResult, error) {
	if w == nil || w.admin == nil {
		return AdminResult{}, errors.New("admin not available")
	}
	resp := make(chan AdminResult, 1)
	select {
	case w.admin <- adminReq{Op: op, Resp: resp}:
	case <-ctx.Done():
		return AdminResult{}, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r, errors.New(r.Err)
		}
		return r, nil
	case <-ctx.Done():
		return AdminResult{}, ctx.Err()
	}
}

func (w *World) applyAdminOp(nowTick uint64, op AdminOp) AdminResult {
	res := AdminResult{Tick: nowTick}
	fail := func(format string, args ...any) AdminResult {
		res.Err = fmt.Sprintf(format, args...)
		return res
	}

	switch op.Kind {
	case AdminSpawnBuilding:
		def, ok := w.catalogs.Structures.ByID[op.Type]
		if !ok {
			return fail("unknown building type: %q", op.Type)
		}
		hp := op.Amount
		if hp <= 0 || hp > def.MaxHP {
			hp = def.MaxHP
		}
		b, err := w.spawnBuilding(op.Type, op.Owner, hp)
		if err != nil {
			return fail("%v", err)
		}
		w.audit(AuditEntry{Tick: nowTick, Actor: "admin", Action: AuditSpawn, Target: b.id, To: b.hp, Details: map[string]any{"type": op.Type, "owner": op.Owner}})
		res.BuildingID = b.id
		res.HP = b.hp

	case AdminDamage:
		b := w.buildings[op.Target]
		if b == nil {
			return fail("building not found: %q", op.Target)
		}
		if op.Amount > maxDamage || op.Amount < -maxDamage {
			return fail("damage out of range: %d", op.Amount)
		}
		b.InflictDamage(op.Amount)
		res.BuildingID = b.id
		res.HP = b.hp
		res.Destroyed = b.Destroyed()

	case AdminSetCash:
		p := w.players[op.Player]
		if p == nil {
			return fail("player not found: %q", op.Player)
		}
		if op.Amount < 0 {
			return fail("cash must be >= 0")
		}
		w.audit(AuditEntry{Tick: nowTick, Actor: "admin", Action: AuditCash, Target: p.ID, From: p.Cash, To: op.Amount})
		p.Cash = op.Amount

	case AdminSetWinState:
		p := w.players[op.Player]
		if p == nil {
			return fail("player not found: %q", op.Player)
		}
		if !validWinState(op.Value) {
			return fail("bad win state: %q", op.Value)
		}
		w.setWinState(nowTick, p, op.Value)

	case AdminSetStance:
		p := w.players[op.Player]
		if p == nil {
			return fail("player not found: %q", op.Player)
		}
		if w.players[op.Target] == nil || op.Target == op.Player {
			return fail("bad stance target: %q", op.Target)
		}
		if !validStance(op.Value) {
			return fail("bad stance: %q", op.Value)
		}
		w.setStance(nowTick, p, op.Target, op.Value)

	default:
		return fail("unknown admin op: %q", op.Kind)
	}
	return res
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.snap == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case w.snap <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := w.ExportSnapshot(snapTick)
		select {
		case w.snapshotSink <- snap:
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}
