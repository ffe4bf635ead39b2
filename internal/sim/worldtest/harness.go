package worldtest

import (
	"encoding/json"
	"testing"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/catalogs"
	world "repairworks.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step()/StepFor() issues ACT via StepOnce()
// - Per-player Out channels carry OBS JSON
// - ExportSnapshot/Debug* helpers provide deterministic preconditions
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	DefaultAgentID string

	sessions map[string]*session
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs, agentName string) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, cats, agentName)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported before join.
func NewHarnessWithWorld(t *testing.T, w *world.World, cats *catalogs.Catalogs, agentName string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}

	h := &Harness{
		T:        t,
		Cats:     cats,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultAgentID = h.Join(agentName)
	return h
}

type session struct {
	AgentID string
	Out     chan []byte
	lastObs protocol.ObsMsg
}

func (h *Harness) Join(agentName string) string {
	return h.JoinFaction(agentName, "")
}

func (h *Harness) JoinFaction(agentName, faction string) string {
	h.T.Helper()

	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name:    agentName,
		Faction: faction,
		Out:     out,
		Resp:    resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		h.T.Fatalf("join returned empty agent id")
	}
	s := &session{AgentID: jr.Welcome.AgentID, Out: out}
	h.sessions[s.AgentID] = s
	h.drainAllObs()
	return s.AgentID
}

func (h *Harness) LastObs() protocol.ObsMsg {
	return h.LastObsFor(h.DefaultAgentID)
}

func (h *Harness) LastObsFor(agentID string) protocol.ObsMsg {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s.lastObs
}

func (h *Harness) Step(instants []protocol.InstantReq) protocol.ObsMsg {
	return h.StepFor(h.DefaultAgentID, instants)
}

func (h *Harness) StepFor(agentID string, instants []protocol.InstantReq) protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, []world.ActionEnvelope{h.Act(agentID, instants...)})
	h.drainAllObs()
	return h.LastObsFor(agentID)
}

// Act builds an ACT envelope stamped with the current tick.
func (h *Harness) Act(agentID string, instants ...protocol.InstantReq) world.ActionEnvelope {
	return world.ActionEnvelope{
		AgentID: agentID,
		Act: protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			Tick:            h.W.CurrentTick(),
			AgentID:         agentID,
			Instants:        instants,
		},
	}
}

func (h *Harness) StepMulti(actions []world.ActionEnvelope) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, actions)
	h.drainAllObs()
}

func (h *Harness) StepNoop() protocol.ObsMsg {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, nil, nil)
	h.drainAllObs()
	return h.LastObs()
}

// StepN advances n empty ticks.
func (h *Harness) StepN(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		_, _ = h.W.StepOnce(nil, nil, nil)
	}
	h.drainAllObs()
}

// ToggleRepair issues a TOGGLE_REPAIR from agentID and returns its OBS.
func (h *Harness) ToggleRepair(agentID, buildingID string) protocol.ObsMsg {
	return h.StepFor(agentID, []protocol.InstantReq{{
		ID:       "toggle_" + buildingID,
		Type:     protocol.InstantToggleRepair,
		TargetID: buildingID,
	}})
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) SpawnBuilding(typ, owner string, hp int) string {
	h.T.Helper()
	id, err := h.W.DebugSpawnBuilding(typ, owner, hp)
	if err != nil {
		h.T.Fatalf("DebugSpawnBuilding: %v", err)
	}
	return id
}

func (h *Harness) Damage(buildingID string, amount int) {
	h.T.Helper()
	if err := h.W.DebugDamage(buildingID, amount); err != nil {
		h.T.Fatalf("DebugDamage: %v", err)
	}
}

func (h *Harness) SetCash(agentID string, cash int) {
	h.T.Helper()
	if err := h.W.DebugSetCash(agentID, cash); err != nil {
		h.T.Fatalf("DebugSetCash: %v", err)
	}
}

func (h *Harness) SetWinState(agentID, state string) {
	h.T.Helper()
	if err := h.W.DebugSetWinState(agentID, state); err != nil {
		h.T.Fatalf("DebugSetWinState: %v", err)
	}
}

func (h *Harness) SetStance(agentID, targetID, stance string) {
	h.T.Helper()
	if err := h.W.DebugSetStance(agentID, targetID, stance); err != nil {
		h.T.Fatalf("DebugSetStance: %v", err)
	}
}

func (h *Harness) Cash(agentID string) int {
	h.T.Helper()
	c, ok := h.W.DebugCash(agentID)
	if !ok {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return c
}

// Building returns HP, repairers and countdown; it fails the test if the building is gone.
func (h *Harness) Building(id string) (hp int, repairers []string, countdown int) {
	h.T.Helper()
	hp, repairers, countdown, ok := h.W.DebugBuilding(id)
	if !ok {
		h.T.Fatalf("building %s not found", id)
	}
	return hp, repairers, countdown
}

func (h *Harness) drainAllObs() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOneObs(s)
	}
}

func (h *Harness) drainOneObs(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		h.T.Fatalf("unmarshal OBS: %v", err)
	}
	s.lastObs = obs
}
