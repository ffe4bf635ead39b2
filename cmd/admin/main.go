package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "repairworks.ai/internal/persistence/log"
	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "spawn":
			spawnCmd(os.Args[2:])
			return
		case "damage":
			damageCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional; lists snapshots when set)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	now := time.Now()
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			fmt.Println(e.Name())
			continue
		}
		fmt.Println(listLine(e.Name(), info.Size(), e.IsDir(), info.ModTime(), now))
	}
}

func listLine(name string, size int64, isDir bool, mod, now time.Time) string {
	if isDir {
		return fmt.Sprintf("%-24s %10s  %s", name+"/", "-", humanize.RelTime(mod, now, "ago", "from now"))
	}
	return fmt.Sprintf("%-24s %10s  %s", name, humanize.Bytes(uint64(size)), humanize.RelTime(mod, now, "ago", "from now"))
}

// rollbackCmd restores building HP in a snapshot to what it was at -since_tick,
// undoing every DAMAGE audit entry (damage and heals) in the window.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	buildings := fs.String("buildings", "", "comma-separated building ids (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback changes since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback changes up to tick (inclusive, optional; defaults to snapshot tick)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	targets := parseIDs(*buildings)
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "missing -buildings")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readAudit(worldDir, *sinceTick, endTick, targets)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	applied, skipped := applyRollback(&snap, recs)

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d buildings=%d since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, len(targets), *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

func readAudit(worldDir string, sinceTick, toTick uint64, targets map[string]bool) ([]auditRec, error) {
	files, err := filepath.Glob(filepath.Join(worldDir, "audit", "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	out := make([]auditRec, 0, 256)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadJSONLZstd(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			seq++
			if e.Action != world.AuditDamage || !targets[e.Target] {
				return nil
			}
			if e.Tick < sinceTick || e.Tick > toTick {
				return nil
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	// Reverse chronological apply: highest tick first; for same tick use reverse read order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback sets each building's HP to the From value of its entries in
// reverse order, so the oldest entry wins. Destroyed buildings are skipped.
func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int) {
	if snap == nil || len(recs) == 0 {
		return 0, 0
	}
	byID := map[string]*snapshot.BuildingV1{}
	for i := range snap.Buildings {
		b := &snap.Buildings[i]
		byID[b.ID] = b
	}
	for _, r := range recs {
		b := byID[r.Entry.Target]
		if b == nil || r.Entry.From <= 0 {
			skipped++
			continue
		}
		b.HP = r.Entry.From
		applied++
	}
	return applied, skipped
}

func parseIDs(s string) map[string]bool {
	out := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
