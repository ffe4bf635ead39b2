package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (omit to replay from tick 0 with -tuning)")
		worldDir   = flag.String("world_dir", "", "world dir containing events/events-*.jsonl.zst (optional)")
		worldID    = flag.String("world", "world_1", "world id (fresh replays only)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml for fresh replays (default: <configs>/tuning.yaml)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	var w *world.World
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		repairing := 0
		for _, b := range snap.Buildings {
			if b.Repair != nil && len(b.Repair.Members) > 0 {
				repairing++
			}
		}
		fmt.Printf("snapshot v%d world=%s tick=%d players=%d buildings=%d repairing=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, len(snap.Players), len(snap.Buildings), repairing)
		if snap.StructuresDigest != "" && snap.StructuresDigest != cats.Structures.Digest {
			fmt.Fprintln(os.Stderr, "warning: structures catalog differs from the one the snapshot was taken with")
		}

		w, err = world.New(world.WorldConfig{ID: snap.Header.WorldID}, cats)
		if err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	} else {
		tp := *tuningPath
		if tp == "" {
			tp = filepath.Join(*configDir, "tuning.yaml")
		}
		tune, err := tuning.Load(tp)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		w, err = world.New(world.ConfigFromTuning(*worldID, tune), cats)
		if err != nil {
			fmt.Fprintln(os.Stderr, "world:", err)
			os.Exit(1)
		}
	}

	if *worldDir == "" {
		return
	}

	startTick := w.CurrentTick()
	res, err := replay(w, *worldDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if res.Checked == 0 {
		fmt.Fprintln(os.Stderr, "no ticks replayed from", *worldDir)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks repair_cycles=%d (from tick=%d)\n", res.Checked, res.RepairCycles, startTick)
}
