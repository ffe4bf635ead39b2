package worldtest

import (
	"testing"

	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/catalogs"
	world "repairworks.ai/internal/sim/world"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

// newRepairHarness returns a world with no starter buildings, so tests spawn exactly what they need.
func newRepairHarness(t *testing.T) *Harness {
	t.Helper()
	return NewHarness(t, world.WorldConfig{
		ID:               "test",
		TickRateHz:       25,
		StartingCash:     1000,
		DefaultFaction:   "allies",
		StarterBuildings: []string{},
	}, loadCats(t), "owner")
}

func actionResultCode(obs protocol.ObsMsg, ref string) string {
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ != "ACTION_RESULT" {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return "E_INTERNAL"
	}
	return "E_INTERNAL"
}

func repairStartedEvents(obs protocol.ObsMsg) []protocol.Event {
	var out []protocol.Event
	for _, e := range obs.Events {
		if typ, _ := e["type"].(string); typ == "REPAIR_STARTED" {
			out = append(out, e)
		}
	}
	return out
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
