package main

import (
	"errors"
	"fmt"

	persistlog "repairworks.ai/internal/persistence/log"
	"repairworks.ai/internal/sim/world"
)

var errStop = errors.New("stop")

type replayResult struct {
	Checked      uint64
	RepairCycles int
}

// replay steps w through the tick log of worldDir, comparing state digests.
// Entries before the world's current tick are skipped.
func replay(w *world.World, worldDir string, verifyFrom, toTick uint64) (replayResult, error) {
	var res replayResult
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	err := persistlog.ForEachTick(worldDir, func(entry world.TickLogEntry) error {
		if entry.Tick < startTick {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		joins := make([]world.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, world.JoinRequest{Name: j.Name, Faction: j.Faction})
		}
		acts := make([]world.ActionEnvelope, 0, len(entry.Actions))
		for _, ra := range entry.Actions {
			acts = append(acts, world.ActionEnvelope{AgentID: ra.AgentID, Act: ra.Act})
		}

		tick, gotDigest := w.StepOnceWithAdmin(joins, entry.Leaves, entry.Admin, acts)
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}
		res.RepairCycles += len(entry.Repairs)
		if tick >= verifyFrom {
			res.Checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return res, err
	}
	return res, nil
}
