package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminReq
	var pendingSnapshots []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.snap:
			pendingSnapshots = append(pendingSnapshots, req)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingAdmin, pendingActions)
			w.handleAdminSnapshotRequests(pendingSnapshots)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingAdmin = pendingAdmin[:0]
			pendingActions = pendingActions[:0]
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) (tick uint64, digest string) {
	return w.StepOnceWithAdmin(joins, leaves, nil, actions)
}

// StepOnceWithAdmin is StepOnce with admin operations applied after joins, as
// recorded in the tick log.
func (w *World) StepOnceWithAdmin(joins []JoinRequest, leaves []string, ops []AdminOp, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	reqs := make([]adminReq, 0, len(ops))
	for _, op := range ops {
		reqs = append(reqs, adminReq{Op: op})
	}
	w.stepInternal(joins, leaves, reqs, actions)
	return tick, w.stateDigest(tick)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
