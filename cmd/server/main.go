package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"repairworks.ai/internal/persistence/indexdb"
	persistlog "repairworks.ai/internal/persistence/log"
	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
	"repairworks.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Load tuning (required for fresh world; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		// Resume fallback: the snapshot carries the effective world config.
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, tune), cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		if snap.StructuresDigest != "" && snap.StructuresDigest != cats.Structures.Digest {
			logger.Printf("structures catalog changed since snapshot (snap=%s now=%s)", snap.StructuresDigest, cats.Structures.Digest)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, *worldID, w)
		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("RW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("RW_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		hist, _ := idx.(repairHistoryIndex)
		registerAdminHandlers(mux, w, hist)
	} else {
		logger.Printf("admin endpoints disabled (RW_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	wsSrv := ws.NewServer(w, validator, logger)
	wsSrv.ActRate = rate.Limit(envInt("RW_WS_ACT_RATE", 20))
	wsSrv.ActBurst = envInt("RW_WS_ACT_BURST", 40)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tick=%d", *addr, *worldID, w.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// Minimal Prometheus exposition format.
func writeWorldMetrics(rw io.Writer, worldID string, w *world.World) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, worldID, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %d\n", name, worldID, v)
	}

	gauge("repairworks_world_tick", "Current world tick.", tick)
	gauge("repairworks_world_players", "Players in the world.", m.Players)
	gauge("repairworks_world_clients", "Connected clients.", m.Clients)
	gauge("repairworks_world_buildings", "Standing buildings.", m.Buildings)
	gauge("repairworks_world_repairing", "Buildings with at least one repairer.", m.Repairing)
	gauge("repairworks_world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	fmt.Fprintf(rw, "# HELP repairworks_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE repairworks_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "repairworks_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "repairworks_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "repairworks_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(rw, "repairworks_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "admin", m.QueueDepths.Admin)

	counter("repairworks_repair_cycles_total", "Repair cycles that ran.", m.RepairCyclesTotal)
	counter("repairworks_repair_aborted_total", "Repair cycles aborted for lack of payers.", m.RepairAbortedTotal)
	counter("repairworks_repair_evicted_total", "Repairers evicted from subscriptions.", m.RepairEvictedTotal)
	counter("repairworks_repair_charged_total", "Cash charged for repairs.", m.RepairChargedTotal)
	counter("repairworks_repair_healed_total", "HP restored by repairs.", m.RepairHealedTotal)
}

func writeIndexMetrics(rw io.Writer, idx runtimeIndex) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		writeQueueMetrics(rw, "sqlite", v.Stats())
	case *indexdb.PostgresIndex:
		writeQueueMetrics(rw, "postgres", v.Stats())
		fmt.Fprintf(rw, "# HELP repairworks_index_commit_fail_total Index transactions that failed.\n")
		fmt.Fprintf(rw, "# TYPE repairworks_index_commit_fail_total counter\n")
		fmt.Fprintf(rw, "repairworks_index_commit_fail_total{backend=\"postgres\"} %d\n", v.CommitFailures())
	case *indexdb.D1Index:
		s := v.Stats()
		fmt.Fprintf(rw, "# HELP repairworks_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE repairworks_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "repairworks_index_queue_depth{backend=\"d1\"} %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP repairworks_index_flush_total Index batch flushes by outcome.\n")
		fmt.Fprintf(rw, "# TYPE repairworks_index_flush_total counter\n")
		fmt.Fprintf(rw, "repairworks_index_flush_total{backend=\"d1\",result=\"ok\"} %d\n", s.FlushOKTotal)
		fmt.Fprintf(rw, "repairworks_index_flush_total{backend=\"d1\",result=\"fail\"} %d\n", s.FlushFailTotal)
		fmt.Fprintf(rw, "# HELP repairworks_index_dropped_total Index writes dropped on backpressure.\n")
		fmt.Fprintf(rw, "# TYPE repairworks_index_dropped_total counter\n")
		fmt.Fprintf(rw, "repairworks_index_dropped_total{backend=\"d1\",kind=\"queue\"} %d\n", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "repairworks_index_dropped_total{backend=\"d1\",kind=\"batch\"} %d\n", s.BatchDroppedTotal)
	}
}

func writeQueueMetrics(rw io.Writer, backend string, s indexdb.Stats) {
	fmt.Fprintf(rw, "# HELP repairworks_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE repairworks_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "repairworks_index_queue_depth{backend=%q} %d\n", backend, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP repairworks_index_dropped_total Index writes dropped on backpressure.\n")
	fmt.Fprintf(rw, "# TYPE repairworks_index_dropped_total counter\n")
	fmt.Fprintf(rw, "repairworks_index_dropped_total{backend=%q,kind=\"tick\"} %d\n", backend, s.DropTickTotal)
	fmt.Fprintf(rw, "repairworks_index_dropped_total{backend=%q,kind=\"audit\"} %d\n", backend, s.DropAuditTotal)
	fmt.Fprintf(rw, "repairworks_index_dropped_total{backend=%q,kind=\"snapshot\"} %d\n", backend, s.DropSnapshotTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
