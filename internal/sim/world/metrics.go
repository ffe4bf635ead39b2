package world

import "repairworks.ai/internal/sim/repair"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players   int `json:"players"`
	Clients   int `json:"clients"`
	Buildings int `json:"buildings"`
	Repairing int `json:"repairing"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	RepairCyclesTotal  uint64 `json:"repair_cycles_total"`
	RepairAbortedTotal uint64 `json:"repair_aborted_total"`
	RepairEvictedTotal uint64 `json:"repair_evicted_total"`
	RepairChargedTotal uint64 `json:"repair_charged_total"`
	RepairHealedTotal  uint64 `json:"repair_healed_total"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Admin int `json:"admin"`
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64, cycles []repair.Cycle) {
	prev := w.Metrics()
	m := WorldMetrics{
		Tick:      nextTick,
		Players:   len(w.players),
		Clients:   len(w.clients),
		Buildings: len(w.buildings),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
			Admin: len(w.admin),
		},
		StepMS:             stepMS,
		RepairCyclesTotal:  prev.RepairCyclesTotal,
		RepairAbortedTotal: prev.RepairAbortedTotal,
		RepairEvictedTotal: prev.RepairEvictedTotal,
		RepairChargedTotal: prev.RepairChargedTotal,
		RepairHealedTotal:  prev.RepairHealedTotal,
	}
	for _, b := range w.buildings {
		if b.repairs.Len() > 0 {
			m.Repairing++
		}
	}
	for _, c := range cycles {
		m.RepairCyclesTotal++
		if c.Aborted {
			m.RepairAbortedTotal++
		}
		m.RepairEvictedTotal += uint64(len(c.Evicted))
		for _, ch := range c.Charges {
			m.RepairChargedTotal += uint64(ch.Amount)
		}
		m.RepairHealedTotal += uint64(c.Healed)
	}
	w.metrics.Store(m)
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
