package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
}

// Stats reports queue pressure. Drops mean the index lags the JSONL logs.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	// reqBarrier carries no data; the writer commits and closes done.
	reqBarrier
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Players   int
	Buildings int
	Repairing int
}

func snapshotRowFor(path string, snap snapshot.SnapshotV1) snapshotRow {
	r := snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Players:   len(snap.Players),
		Buildings: len(snap.Buildings),
	}
	for _, b := range snap.Buildings {
		if b.Repair != nil && len(b.Repair.Members) > 0 {
			r.Repairing++
		}
	}
	return r
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: allow bursty audit writes without stalling the sim.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			admin INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			repairs INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			faction TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			act_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent_tick ON actions(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			from_value INTEGER NOT NULL,
			to_value INTEGER NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_target_tick ON audits(target, tick);`,
		`CREATE TABLE IF NOT EXISTS repair_cycles (
			tick INTEGER NOT NULL,
			building_id TEXT NOT NULL,
			cost INTEGER NOT NULL,
			healed INTEGER NOT NULL,
			payers INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			aborted INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, building_id)
		);`,
		`CREATE TABLE IF NOT EXISTS repair_charges (
			tick INTEGER NOT NULL,
			building_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			PRIMARY KEY (tick, building_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_repair_charges_agent ON repair_charges(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			players INTEGER NOT NULL,
			buildings INTEGER NOT NULL,
			repairing INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: snapshotRowFor(path, snap)}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush blocks until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqBarrier, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	if configDir != "" && cats != nil {
		if b, err := os.ReadFile(filepath.Join(configDir, "structures.json")); err == nil && len(b) > 0 {
			rows = append(rows, catalogRow{name: "structures", digest: cats.Structures.Digest, json: b})
		}
	}
	// Tuning: store the values we actually apply (canonical JSON).
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	return rows
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := catalogRows(configDir, cats, tune)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RepairCycleRow is one indexed repair cycle.
type RepairCycleRow struct {
	Tick       uint64 `json:"tick"`
	BuildingID string `json:"building_id"`
	Cost       int    `json:"cost"`
	Healed     int    `json:"healed"`
	Payers     int    `json:"payers"`
	Evicted    int    `json:"evicted"`
	Aborted    bool   `json:"aborted"`
	Completed  bool   `json:"completed"`
}

// RepairHistory returns the most recent cycles of a building, newest first.
func (s *SQLiteIndex) RepairHistory(ctx context.Context, buildingID string, limit int) ([]RepairCycleRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,building_id,cost,healed,payers,evicted,aborted,completed
		FROM repair_cycles WHERE building_id=? ORDER BY tick DESC LIMIT ?`, buildingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RepairCycleRow
	for rows.Next() {
		var r RepairCycleRow
		var tick int64
		var aborted, completed int
		if err := rows.Scan(&tick, &r.BuildingID, &r.Cost, &r.Healed, &r.Payers, &r.Evicted, &aborted, &completed); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.Aborted = aborted != 0
		r.Completed = completed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalCharged sums what an agent has paid for repairs.
func (s *SQLiteIndex) TotalCharged(ctx context.Context, agentID string) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(amount) FROM repair_charges WHERE agent_id=?`, agentID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,admin,actions,repairs,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,agent_id,name,faction) VALUES(?,?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,agent_id) VALUES(?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(tick,seq,agent_id,act_json) VALUES(?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,target,from_value,to_value,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertCycle, _ := s.db.Prepare(`INSERT OR REPLACE INTO repair_cycles(tick,building_id,cost,healed,payers,evicted,aborted,completed,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertCharge, _ := s.db.Prepare(`INSERT OR REPLACE INTO repair_charges(tick,building_id,seq,agent_id,amount) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,players,buildings,repairing) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertAction, insertAudit, insertCycle, insertCharge, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqBarrier {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			tick := int64(e.Tick)
			b, _ := json.Marshal(e)
			if !exec(insertTick, tick, e.Digest, len(e.Joins), len(e.Leaves), len(e.Admin), len(e.Actions), len(e.Repairs), string(b)) {
				continue
			}
			ok := true
			for _, j := range e.Joins {
				if ok = exec(insertJoin, tick, j.AgentID, j.Name, j.Faction); !ok {
					break
				}
			}
			for _, id := range e.Leaves {
				if !ok {
					break
				}
				ok = exec(insertLeave, tick, id)
			}
			for i, a := range e.Actions {
				if !ok {
					break
				}
				actJSON, _ := json.Marshal(a.Act)
				ok = exec(insertAction, tick, i, a.AgentID, string(actJSON))
			}
			for _, c := range e.Repairs {
				if !ok {
					break
				}
				raw, _ := json.Marshal(c)
				ok = exec(insertCycle, tick, c.StructureID, c.Cost, c.Healed, len(c.Charges), len(c.Evicted), boolInt(c.Aborted), boolInt(c.Completed), string(raw))
				for i, ch := range c.Charges {
					if !ok {
						break
					}
					ok = exec(insertCharge, tick, c.StructureID, i, ch.AgentID, ch.Amount)
				}
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Target, a.From, a.To, a.Reason, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Players, sn.Buildings, sn.Repairing)
		}

		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
