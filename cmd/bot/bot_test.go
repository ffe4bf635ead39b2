package main

import (
	"testing"

	"repairworks.ai/internal/protocol"
)

func obsFixture(tick uint64) *protocol.ObsMsg {
	return &protocol.ObsMsg{
		Tick:    tick,
		AgentID: "P1",
		Self: protocol.SelfObs{
			Cash:     100,
			WinState: "UNDECIDED",
			// Only our own stance counts; P3 regarding us as ALLY does not.
			Stances: map[string]string{"P2": "ALLY", "P3": "NEUTRAL"},
		},
		Players: []protocol.PlayerObs{
			{ID: "P2", Stance: "NEUTRAL"},
			{ID: "P3", Stance: "ALLY"},
		},
		Buildings: []protocol.BuildingObs{
			{ID: "B000001", Owner: "P1", HP: 500, MaxHP: 1000, Repairable: true},
			{ID: "B000002", Owner: "P1", HP: 1000, MaxHP: 1000, Repairable: true},
			{ID: "B000003", Owner: "P2", HP: 100, MaxHP: 400, Repairable: true},
			{ID: "B000004", Owner: "P3", HP: 100, MaxHP: 400, Repairable: true},
			{ID: "B000005", Owner: "P1", HP: 10, MaxHP: 400, Repairable: false},
		},
	}
}

func targets(act protocol.ActMsg) []string {
	var out []string
	for _, in := range act.Instants {
		out = append(out, in.TargetID)
	}
	return out
}

func TestRepairBot_TogglesOwnAndAlliedDamagedBuildings(t *testing.T) {
	b := newRepairBot(90, true)
	act, ok := b.decide(obsFixture(10))
	if !ok {
		t.Fatalf("expected an action")
	}
	got := targets(act)
	if len(got) != 2 || got[0] != "B000001" || got[1] != "B000003" {
		t.Fatalf("targets=%v want [B000001 B000003]", got)
	}
	for _, in := range act.Instants {
		if in.Type != protocol.InstantToggleRepair {
			t.Fatalf("unexpected instant type %q", in.Type)
		}
	}

	// In flight: no duplicate toggles.
	if _, ok := b.decide(obsFixture(11)); ok {
		t.Fatalf("toggle repeated while pending")
	}

	// Once membership shows up, nothing more to do.
	obs := obsFixture(20)
	obs.Buildings[0].Repairers = []string{"P1"}
	obs.Buildings[2].Repairers = []string{"P1"}
	if act, ok := b.decide(obs); ok {
		t.Fatalf("unexpected toggles: %v", targets(act))
	}
}

func TestRepairBot_LeavesWhenBroke(t *testing.T) {
	b := newRepairBot(90, false)
	obs := obsFixture(30)
	obs.Self.Cash = 0
	obs.Buildings[0].Repairers = []string{"P1"}
	act, ok := b.decide(obs)
	if !ok {
		t.Fatalf("expected to leave the repair")
	}
	if got := targets(act); len(got) != 1 || got[0] != "B000001" {
		t.Fatalf("targets=%v want [B000001]", got)
	}
}

func TestRepairBot_IdleAfterSurrender(t *testing.T) {
	b := newRepairBot(90, true)
	obs := obsFixture(40)
	obs.Self.WinState = "LOST"
	if _, ok := b.decide(obs); ok {
		t.Fatalf("decided players must not act")
	}
}
