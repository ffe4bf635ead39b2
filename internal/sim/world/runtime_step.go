package world

import (
	"encoding/json"
	"time"

	"repairworks.ai/internal/sim/repair"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []string, admin []adminReq, actions []ActionEnvelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.players[id]; ok {
			delete(w.clients, id)
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinPlayer(req.Name, req.Faction, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		p := w.players[resp.Welcome.AgentID]
		recordedJoins = append(recordedJoins, RecordedJoin{AgentID: p.ID, Name: p.Name, Faction: p.Faction})
	}

	recordedAdmin := make([]AdminOp, 0, len(admin))
	for _, req := range admin {
		res := w.applyAdminOp(nowTick, req.Op)
		if res.Err == "" {
			recordedAdmin = append(recordedAdmin, req.Op)
		}
		if req.Resp != nil {
			select {
			case req.Resp <- res:
			default:
			}
		}
	}

	// Apply actions in server_receive_order (the inbox order).
	recorded := make([]RecordedAction, 0, len(actions))
	for _, env := range actions {
		p := w.players[env.AgentID]
		if p == nil {
			continue
		}
		env.Act.AgentID = env.AgentID // trust session identity
		recorded = append(recorded, RecordedAction{AgentID: env.AgentID, Act: env.Act})
		w.applyAct(p, env.Act, nowTick)
	}

	cycles := w.systemRepair(nowTick)

	// Build + send OBS for each connected player.
	for _, id := range w.sortedPlayerIDs() {
		cl := w.clients[id]
		if cl == nil {
			// Nobody to deliver to.
			w.players[id].Events = nil
			continue
		}
		obs := w.buildObs(w.players[id], nowTick)
		b, err := json.Marshal(obs)
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{
			Tick:    nowTick,
			Joins:   recordedJoins,
			Leaves:  recordedLeaves,
			Admin:   recordedAdmin,
			Actions: recorded,
			Repairs: cycles,
			Digest:  digest,
		})
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS, cycles)
}

// systemRepair ticks every repairable building in id order and returns the
// cycles that ran.
func (w *World) systemRepair(nowTick uint64) []repair.Cycle {
	var ran []repair.Cycle
	ids := make([]string, len(w.buildingIDs))
	copy(ids, w.buildingIDs)
	for _, id := range ids {
		b := w.buildings[id]
		if b == nil || b.repairs == nil {
			continue
		}
		cyc := w.repair.Tick(b)
		if !cyc.Ran {
			continue
		}
		for _, ev := range cyc.Evicted {
			w.audit(AuditEntry{
				Tick:   nowTick,
				Actor:  ev.AgentID,
				Action: AuditRepairEvicted,
				Target: id,
				Reason: string(ev.Reason),
			})
		}
		ran = append(ran, cyc)
	}
	return ran
}
