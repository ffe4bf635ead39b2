package world

import "repairworks.ai/internal/sim/repair"

// ---- Debug/Test Helpers ----
//
// These helpers exist to allow black-box tests in sibling packages (e.g. internal/sim/worldtest)
// to set up deterministic preconditions without reaching into world internals.
//
// They are NOT safe to call concurrently with Run(). Prefer using them only in tests that drive
// the world via StepOnce(), from a single goroutine. Use RequestAdmin from other goroutines.

func (w *World) DebugSpawnBuilding(typ, owner string, hp int) (string, error) {
	res := w.applyAdminOp(w.tick.Load(), AdminOp{Kind: AdminSpawnBuilding, Type: typ, Owner: owner, Amount: hp})
	return res.BuildingID, errString(res.Err)
}

func (w *World) DebugDamage(buildingID string, amount int) error {
	res := w.applyAdminOp(w.tick.Load(), AdminOp{Kind: AdminDamage, Target: buildingID, Amount: amount})
	return errString(res.Err)
}

func (w *World) DebugSetCash(playerID string, cash int) error {
	res := w.applyAdminOp(w.tick.Load(), AdminOp{Kind: AdminSetCash, Player: playerID, Amount: cash})
	return errString(res.Err)
}

func (w *World) DebugSetWinState(playerID, state string) error {
	res := w.applyAdminOp(w.tick.Load(), AdminOp{Kind: AdminSetWinState, Player: playerID, Value: state})
	return errString(res.Err)
}

func (w *World) DebugSetStance(playerID, targetID, stance string) error {
	res := w.applyAdminOp(w.tick.Load(), AdminOp{Kind: AdminSetStance, Player: playerID, Target: targetID, Value: stance})
	return errString(res.Err)
}

func (w *World) DebugClearEvents(playerID string) bool {
	p := w.players[playerID]
	if p == nil {
		return false
	}
	p.Events = nil
	return true
}

// DebugBuilding reports a building's HP and repair state.
func (w *World) DebugBuilding(id string) (hp int, repairers []string, countdown int, ok bool) {
	b := w.buildings[id]
	if b == nil {
		return 0, nil, 0, false
	}
	return b.hp, b.repairs.Members(), b.repairs.Countdown(), true
}

func (w *World) DebugCash(playerID string) (int, bool) {
	p := w.players[playerID]
	if p == nil {
		return 0, false
	}
	return p.Cash, true
}

func (w *World) DebugIsRepairing(buildingID, playerID string) bool {
	b := w.buildings[buildingID]
	if b == nil || b.repairs == nil {
		return false
	}
	return w.repair.IsRepairing(b, playerID)
}

// DebugRepairConfig returns the repair profile of a building, if it has one.
func (w *World) DebugRepairConfig(buildingID string) (repair.Config, bool) {
	b := w.buildings[buildingID]
	if b == nil || !b.Repairable() {
		return repair.Config{}, false
	}
	return b.RepairConfig(), true
}

// DebugStateDigest returns the current world digest for the given tick label.
// This is intended for black-box determinism tests in sibling packages.
func (w *World) DebugStateDigest(nowTick uint64) string {
	if w == nil {
		return ""
	}
	return w.stateDigest(nowTick)
}

type debugError string

func (e debugError) Error() string { return string(e) }

func errString(s string) error {
	if s == "" {
		return nil
	}
	return debugError(s)
}
