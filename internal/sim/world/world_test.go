package world

import (
	"encoding/json"
	"testing"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/catalogs"
)

type recordingTickLogger struct{ entries []TickLogEntry }

func (l *recordingTickLogger) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

type recordingAuditLogger struct{ entries []AuditEntry }

func (l *recordingAuditLogger) WriteAudit(e AuditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func (l *recordingAuditLogger) byAction(action string) []AuditEntry {
	var out []AuditEntry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(WorldConfig{
		ID:               "W1",
		TickRateHz:       25,
		StartingCash:     100,
		StarterBuildings: []string{},
	}, loadCats(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func joinTest(t *testing.T, w *World, name string) (string, chan []byte) {
	t.Helper()
	out := make(chan []byte, 4)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: name, Out: out, Resp: resp}}, nil, nil)
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		t.Fatalf("empty agent id")
	}
	return jr.Welcome.AgentID, out
}

func lastObs(t *testing.T, out chan []byte) protocol.ObsMsg {
	t.Helper()
	var last []byte
	for {
		select {
		case b := <-out:
			last = b
			continue
		default:
		}
		break
	}
	if last == nil {
		t.Fatalf("no OBS delivered")
	}
	var obs protocol.ObsMsg
	if err := json.Unmarshal(last, &obs); err != nil {
		t.Fatalf("unmarshal obs: %v", err)
	}
	return obs
}

func act(w *World, agentID string, insts ...protocol.InstantReq) ActionEnvelope {
	return ActionEnvelope{AgentID: agentID, Act: protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            w.CurrentTick(),
		AgentID:         agentID,
		Instants:        insts,
	}}
}

func TestNew_RejectsUnknownStarterBuilding(t *testing.T) {
	_, err := New(WorldConfig{StarterBuildings: []string{"nope"}}, loadCats(t))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestJoin_GrantsCashFactionAndStarterBuildings(t *testing.T) {
	w, err := New(WorldConfig{
		ID:               "W1",
		StartingCash:     5000,
		DefaultFaction:   "allies",
		StarterBuildings: []string{"fact", "powr"},
	}, loadCats(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	out := make(chan []byte, 4)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "  alice  ", Faction: "soviet", Out: out, Resp: resp}}, nil, nil)
	jr := <-resp

	if jr.Welcome.WorldParams.StartingCash != 5000 || jr.Welcome.WorldParams.WorldID != "W1" {
		t.Fatalf("welcome: %+v", jr.Welcome)
	}
	if jr.Welcome.Catalogs.StructuresDigest == "" || jr.Welcome.Catalogs.TuningDigest == "" {
		t.Fatalf("missing digests: %+v", jr.Welcome.Catalogs)
	}
	if len(jr.Catalogs) != 2 || jr.Catalogs[0].Name != "structures" || jr.Catalogs[1].Name != "tuning" {
		t.Fatalf("catalogs: %+v", jr.Catalogs)
	}

	obs := lastObs(t, out)
	if obs.Self.Cash != 5000 || obs.Self.Faction != "soviet" || obs.Self.WinState != WinUndecided {
		t.Fatalf("self: %+v", obs.Self)
	}
	if len(obs.Buildings) != 2 {
		t.Fatalf("expected 2 starter buildings, got %+v", obs.Buildings)
	}
	for _, b := range obs.Buildings {
		if b.Owner != jr.Welcome.AgentID || b.HP != b.MaxHP || !b.Repairable {
			t.Fatalf("starter building: %+v", b)
		}
	}
	if w.players[jr.Welcome.AgentID].Name != "alice" {
		t.Fatalf("name not normalized: %q", w.players[jr.Welcome.AgentID].Name)
	}
}

func TestToggleRepair_RunsCycleInSameTick(t *testing.T) {
	w := newTestWorld(t)
	audits := &recordingAuditLogger{}
	ticks := &recordingTickLogger{}
	w.SetAuditLogger(audits)
	w.SetTickLogger(ticks)

	p1, out := joinTest(t, w, "alice")
	bid, err := w.DebugSpawnBuilding("fact", p1, 500)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	w.StepOnce(nil, nil, []ActionEnvelope{act(w, p1, protocol.InstantReq{ID: "I1", Type: protocol.InstantToggleRepair, TargetID: bid})})

	obs := lastObs(t, out)
	// fact: value 2500, max 1000, 20%, step 7 => cost floor(3.5) = 3.
	if obs.Self.Cash != 97 {
		t.Fatalf("cash: got %d want 97", obs.Self.Cash)
	}
	var got *protocol.BuildingObs
	for i := range obs.Buildings {
		if obs.Buildings[i].ID == bid {
			got = &obs.Buildings[i]
		}
	}
	if got == nil || got.HP != 507 || got.Countdown != 24 || len(got.Repairers) != 1 || got.Repairers[0] != p1 {
		t.Fatalf("building: %+v", got)
	}

	var started, result bool
	for _, e := range obs.Events {
		switch e["type"] {
		case "REPAIR_STARTED":
			started = e["building"] == bid && e["style"] == "player" && e["faction"] == "allies"
		case "ACTION_RESULT":
			result = e["ref"] == "I1" && e["ok"] == true
		}
	}
	if !started || !result {
		t.Fatalf("events: %+v", obs.Events)
	}

	last := ticks.entries[len(ticks.entries)-1]
	if len(last.Repairs) != 1 || last.Repairs[0].Cost != 3 || last.Repairs[0].Healed != 7 {
		t.Fatalf("tick log repairs: %+v", last.Repairs)
	}

	heals := 0
	for _, e := range audits.byAction(AuditDamage) {
		if e.Target == bid && e.Reason == "heal" && e.From == 500 && e.To == 507 {
			heals++
		}
	}
	if heals != 1 {
		t.Fatalf("expected one heal audit, got %+v", audits.entries)
	}
	if len(audits.byAction(AuditRepairStarted)) != 1 {
		t.Fatalf("expected a REPAIR_STARTED audit")
	}
}

func TestToggleRepair_RejectsUnknownAndNonRepairable(t *testing.T) {
	w := newTestWorld(t)
	p1, out := joinTest(t, w, "alice")
	bag, err := w.DebugSpawnBuilding("sbag", p1, 50)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	w.StepOnce(nil, nil, []ActionEnvelope{act(w, p1,
		protocol.InstantReq{ID: "I1", Type: protocol.InstantToggleRepair, TargetID: "B999999"},
		protocol.InstantReq{ID: "I2", Type: protocol.InstantToggleRepair, TargetID: bag},
	)})
	obs := lastObs(t, out)
	codes := map[string]string{}
	for _, e := range obs.Events {
		if e["type"] == "ACTION_RESULT" {
			ref, _ := e["ref"].(string)
			code, _ := e["code"].(string)
			codes[ref] = code
		}
	}
	if codes["I1"] != protocol.ErrInvalidTarget || codes["I2"] != protocol.ErrInvalidTarget {
		t.Fatalf("codes: %+v", codes)
	}
}

func TestApplyAct_RejectsStaleTick(t *testing.T) {
	w := newTestWorld(t)
	p1, out := joinTest(t, w, "alice")
	for i := 0; i < 4; i++ {
		w.StepOnce(nil, nil, nil)
	}
	env := act(w, p1, protocol.InstantReq{ID: "I1", Type: protocol.InstantSurrender})
	env.Act.Tick = w.CurrentTick() - 3
	w.StepOnce(nil, nil, []ActionEnvelope{env})

	obs := lastObs(t, out)
	if obs.Self.WinState != WinUndecided {
		t.Fatalf("stale act applied")
	}
	found := false
	for _, e := range obs.Events {
		if e["type"] == "ACTION_RESULT" && e["code"] == protocol.ErrStale {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected E_STALE, events=%+v", obs.Events)
	}
}

func TestSetStanceAndSurrender(t *testing.T) {
	w := newTestWorld(t)
	p1, out1 := joinTest(t, w, "alice")
	p2, _ := joinTest(t, w, "bob")

	w.StepOnce(nil, nil, []ActionEnvelope{
		act(w, p1, protocol.InstantReq{ID: "S1", Type: protocol.InstantSetStance, TargetID: p2, Stance: StanceAlly}),
		act(w, p2, protocol.InstantReq{ID: "S2", Type: protocol.InstantSurrender}),
	})
	obs := lastObs(t, out1)
	if obs.Self.Stances[p2] != StanceAlly {
		t.Fatalf("stances: %+v", obs.Self.Stances)
	}
	if len(obs.Players) != 1 || obs.Players[0].WinState != WinLost || obs.Players[0].Stance != StanceNeutral {
		t.Fatalf("players: %+v", obs.Players)
	}

	w.StepOnce(nil, nil, []ActionEnvelope{act(w, p2, protocol.InstantReq{ID: "S3", Type: protocol.InstantSurrender})})
	if w.players[p2].WinState != WinLost {
		t.Fatalf("win state changed after second surrender")
	}

	w.StepOnce(nil, nil, []ActionEnvelope{act(w, p1, protocol.InstantReq{ID: "S4", Type: protocol.InstantSetStance, TargetID: p2, Stance: "FRENEMY"})})
	if w.players[p1].StanceToward(p2) != StanceAlly {
		t.Fatalf("bad stance should be ignored")
	}
}

func TestDamageToZero_DestroysBuildingAndSubscription(t *testing.T) {
	w := newTestWorld(t)
	audits := &recordingAuditLogger{}
	w.SetAuditLogger(audits)
	p1, out := joinTest(t, w, "alice")
	bid, _ := w.DebugSpawnBuilding("powr", p1, 100)

	w.StepOnce(nil, nil, []ActionEnvelope{act(w, p1, protocol.InstantReq{ID: "I1", Type: protocol.InstantToggleRepair, TargetID: bid})})
	if !w.DebugIsRepairing(bid, p1) {
		t.Fatalf("expected subscription")
	}
	if err := w.DebugDamage(bid, 10_000); err != nil {
		t.Fatalf("damage: %v", err)
	}
	if _, _, _, ok := w.DebugBuilding(bid); ok {
		t.Fatalf("building should be destroyed")
	}
	if w.DebugIsRepairing(bid, p1) {
		t.Fatalf("subscription should be gone with the building")
	}
	if len(audits.byAction(AuditDestroyed)) != 1 {
		t.Fatalf("expected DESTROYED audit")
	}

	w.StepOnce(nil, nil, nil)
	obs := lastObs(t, out)
	if len(obs.Buildings) != 0 {
		t.Fatalf("buildings: %+v", obs.Buildings)
	}
}

func TestInflictDamage_ClampsToMax(t *testing.T) {
	w := newTestWorld(t)
	p1, _ := joinTest(t, w, "alice")
	bid, _ := w.DebugSpawnBuilding("powr", p1, 395)
	if err := w.DebugDamage(bid, -50); err != nil {
		t.Fatalf("heal: %v", err)
	}
	hp, _, _, _ := w.DebugBuilding(bid)
	if hp != 400 {
		t.Fatalf("hp: got %d want 400", hp)
	}
}

func TestSnapshotRoundTrip_PreservesDigestAndRepairState(t *testing.T) {
	w := newTestWorld(t)
	p1, _ := joinTest(t, w, "alice")
	p2, _ := joinTest(t, w, "bob")
	_ = w.DebugSetStance(p2, p1, StanceAlly)
	bid, _ := w.DebugSpawnBuilding("fact", p1, 400)
	w.StepOnce(nil, nil, []ActionEnvelope{
		act(w, p1, protocol.InstantReq{ID: "a", Type: protocol.InstantToggleRepair, TargetID: bid}),
		act(w, p2, protocol.InstantReq{ID: "b", Type: protocol.InstantToggleRepair, TargetID: bid}),
	})
	w.StepOnce(nil, nil, nil)

	snapTick := w.CurrentTick() - 1
	snap := w.ExportSnapshot(snapTick)
	want := w.stateDigest(snapTick)

	w2, err := New(WorldConfig{ID: "W1"}, loadCats(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := w2.stateDigest(snapTick); got != want {
		t.Fatalf("digest mismatch: got %s want %s", got, want)
	}
	if w2.CurrentTick() != snapTick+1 {
		t.Fatalf("tick: got %d want %d", w2.CurrentTick(), snapTick+1)
	}
	_, members, countdown, ok := w2.DebugBuilding(bid)
	if !ok || len(members) != 2 || members[0] != p1 || members[1] != p2 || countdown != 23 {
		t.Fatalf("repair state: members=%v countdown=%d", members, countdown)
	}

	// Both worlds must evolve identically.
	_, d1 := w.StepOnce(nil, nil, nil)
	_, d2 := w2.StepOnce(nil, nil, nil)
	if d1 != d2 {
		t.Fatalf("diverged after import: %s vs %s", d1, d2)
	}
}

func TestImportSnapshot_RejectsUnknownBuildingType(t *testing.T) {
	w := newTestWorld(t)
	p1, _ := joinTest(t, w, "alice")
	_, _ = w.DebugSpawnBuilding("fact", p1, 0)
	snap := w.ExportSnapshot(0)
	snap.Buildings[0].Type = "nope"
	if err := w.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected error")
	}
}

func TestImportSnapshot_DedupesMembersBeforeCapping(t *testing.T) {
	w := newTestWorld(t)
	p1, _ := joinTest(t, w, "alice")
	p2, _ := joinTest(t, w, "bob")
	bid, _ := w.DebugSpawnBuilding("gun", p1, 100) // max_repairers 2
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	for i := range snap.Buildings {
		if snap.Buildings[i].ID == bid {
			snap.Buildings[i].Repair = &snapshot.RepairV1{Members: []string{p1, p1, p2}, Countdown: 5}
		}
	}

	w2, err := New(WorldConfig{ID: "W1"}, loadCats(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	_, members, countdown, ok := w2.DebugBuilding(bid)
	if !ok || len(members) != 2 || members[0] != p1 || members[1] != p2 || countdown != 5 {
		t.Fatalf("members=%v countdown=%d", members, countdown)
	}
}

func TestTickLog_RecordsAcceptedAdminOps(t *testing.T) {
	w := newTestWorld(t)
	ticks := &recordingTickLogger{}
	w.SetTickLogger(ticks)
	p1, _ := joinTest(t, w, "alice")

	w.StepOnceWithAdmin(nil, nil, []AdminOp{
		{Kind: AdminSpawnBuilding, Type: "gun", Owner: p1},
		{Kind: AdminSetCash, Player: "P404", Amount: 1},
	}, nil)
	last := ticks.entries[len(ticks.entries)-1]
	if len(last.Admin) != 1 || last.Admin[0].Kind != AdminSpawnBuilding {
		t.Fatalf("admin ops: %+v", last.Admin)
	}
	if w.Metrics().Buildings != 1 {
		t.Fatalf("metrics: %+v", w.Metrics())
	}
}

func TestTakeEvents_RespectsLimit(t *testing.T) {
	p := &Player{}
	for i := 0; i < 5; i++ {
		p.AddEvent(protocol.Event{"i": i})
	}
	got := p.TakeEvents(3)
	if len(got) != 3 || got[0]["i"] != 0 || got[2]["i"] != 2 {
		t.Fatalf("first batch: %+v", got)
	}
	got = p.TakeEvents(3)
	if len(got) != 2 || got[0]["i"] != 3 {
		t.Fatalf("second batch: %+v", got)
	}
	if p.TakeEvents(3) != nil {
		t.Fatalf("expected empty")
	}
}
