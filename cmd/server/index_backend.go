package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"repairworks.ai/internal/persistence/indexdb"
	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

// repairHistoryIndex is implemented by backends that can be queried locally.
type repairHistoryIndex interface {
	RepairHistory(ctx context.Context, buildingID string, limit int) ([]indexdb.RepairCycleRow, error)
	TotalCharged(ctx context.Context, agentID string) (int64, error)
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RW_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "postgres", "pg":
		dsn := strings.TrimSpace(os.Getenv("RW_INDEX_PG_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("RW_INDEX_BACKEND=postgres but RW_INDEX_PG_DSN is empty")
		}
		idx, err := indexdb.OpenPostgres(dsn, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("RW_INDEX_D1_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("RW_INDEX_D1_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("RW_INDEX_BACKEND=d1 but RW_INDEX_D1_INGEST_URL is empty")
		}
		flushMS := envInt("RW_INDEX_D1_FLUSH_MS", 500)
		batchSize := envInt("RW_INDEX_D1_BATCH_SIZE", 128)
		maxPending := envInt("RW_INDEX_D1_MAX_PENDING", 0)
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         token,
			WorldID:       worldID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			MaxPending:    maxPending,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported RW_INDEX_BACKEND: %s", backend)
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
