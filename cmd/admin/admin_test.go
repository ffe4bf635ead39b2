package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"repairworks.ai/internal/persistence/indexdb"
	persistlog "repairworks.ai/internal/persistence/log"
	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/repair"
	"repairworks.ai/internal/sim/world"
)

func TestRollback_RestoresHPAtSinceTick(t *testing.T) {
	worldDir := t.TempDir()
	now := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	al := persistlog.NewAuditLoggerWithOptions(worldDir, persistlog.LoggerOptions{Now: now})
	for _, e := range []world.AuditEntry{
		{Tick: 5, Actor: "admin", Action: world.AuditDamage, Target: "B000001", From: 1000, To: 900, Reason: "damage"},
		{Tick: 10, Actor: "admin", Action: world.AuditDamage, Target: "B000001", From: 900, To: 600, Reason: "damage"},
		{Tick: 12, Actor: "WORLD", Action: world.AuditDamage, Target: "B000001", From: 600, To: 607, Reason: "heal"},
		{Tick: 12, Actor: "P1", Action: world.AuditRepairStarted, Target: "B000001"},
		{Tick: 13, Actor: "admin", Action: world.AuditDamage, Target: "B000002", From: 400, To: 100, Reason: "damage"},
		{Tick: 14, Actor: "admin", Action: world.AuditDamage, Target: "B000003", From: 50, To: 0, Reason: "damage"},
	} {
		if err := al.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	_ = al.Close()

	recs, err := readAudit(worldDir, 8, 20, parseIDs("B000001, B000003"))
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("recs=%d want 3", len(recs))
	}
	if recs[0].Entry.Tick != 14 || recs[2].Entry.Tick != 10 {
		t.Fatalf("records not in reverse order: %+v", recs)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "world_1", Tick: 20},
		Buildings: []snapshot.BuildingV1{
			{ID: "B000001", Type: "fact", Owner: "P1", HP: 607},
			{ID: "B000002", Type: "powr", Owner: "P1", HP: 100},
		},
	}
	applied, skipped := applyRollback(&snap, recs)
	if applied != 2 || skipped != 1 {
		t.Fatalf("applied=%d skipped=%d want 2/1", applied, skipped)
	}
	if snap.Buildings[0].HP != 900 {
		t.Fatalf("B000001 hp=%d want 900", snap.Buildings[0].HP)
	}
	if snap.Buildings[1].HP != 100 {
		t.Fatalf("B000002 must be untouched, hp=%d", snap.Buildings[1].HP)
	}
}

func TestRunQuery_RepairsAndCharges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 7, Digest: "x", Repairs: []repair.Cycle{{
		StructureID: "B000004", Ran: true, Cost: 2, Healed: 7,
		Charges: []repair.Charge{{AgentID: "P1", Amount: 2}, {AgentID: "P3", Amount: 2}},
	}}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	_ = idx.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var got []any
	collect := func(v any) { got = append(got, v) }

	if err := runQuery(db, "repairs", "B000004", "", 10, collect); err != nil {
		t.Fatalf("repairs: %v", err)
	}
	if len(got) != 1 || got[0].(repairRow).Payers != 2 {
		t.Fatalf("unexpected repairs: %+v", got)
	}

	got = nil
	if err := runQuery(db, "charges", "", "P3", 10, collect); err != nil {
		t.Fatalf("charges: %v", err)
	}
	if len(got) != 1 || got[0].(chargeRow).Amount != 2 {
		t.Fatalf("unexpected charges: %+v", got)
	}

	got = nil
	if err := runQuery(db, "ticks", "", "", 10, collect); err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(got) != 1 || got[0].(tickRow).Repairs != 1 {
		t.Fatalf("unexpected ticks: %+v", got)
	}

	if err := runQuery(db, "agents", "", "", 10, collect); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestListLine_HumanSizes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := listLine("120.snap.zst", 2048, false, now.Add(-3*time.Hour), now)
	if !strings.HasPrefix(got, "120.snap.zst") || !strings.Contains(got, "2.0 kB") || !strings.Contains(got, "3 hours ago") {
		t.Fatalf("unexpected line: %q", got)
	}
	dir := listLine("world_1", 0, true, now.Add(-time.Minute), now)
	if !strings.HasPrefix(dir, "world_1/") || !strings.Contains(dir, "1 minute ago") {
		t.Fatalf("unexpected dir line: %q", dir)
	}
}
