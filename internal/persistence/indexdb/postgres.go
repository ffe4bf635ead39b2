package indexdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
)

// Row models. Table names match the SQLite schema so the same queries read both.

type pgTick struct {
	Tick    int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	Digest  string `gorm:"column:digest;not null"`
	Joins   int    `gorm:"column:joins;not null"`
	Leaves  int    `gorm:"column:leaves;not null"`
	Admin   int    `gorm:"column:admin;not null"`
	Actions int    `gorm:"column:actions;not null"`
	Repairs int    `gorm:"column:repairs;not null"`
	RawJSON string `gorm:"column:raw_json;type:text;not null"`
}

func (pgTick) TableName() string { return "ticks" }

type pgJoin struct {
	Tick    int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	AgentID string `gorm:"column:agent_id;primaryKey"`
	Name    string `gorm:"column:name;not null"`
	Faction string `gorm:"column:faction;not null"`
}

func (pgJoin) TableName() string { return "joins" }

type pgLeave struct {
	Tick    int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	AgentID string `gorm:"column:agent_id;primaryKey"`
}

func (pgLeave) TableName() string { return "leaves" }

type pgAction struct {
	Tick    int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	Seq     int    `gorm:"column:seq;primaryKey;autoIncrement:false"`
	AgentID string `gorm:"column:agent_id;not null;index:idx_actions_agent_tick"`
	ActJSON string `gorm:"column:act_json;type:text;not null"`
}

func (pgAction) TableName() string { return "actions" }

type pgAudit struct {
	Tick      int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	Seq       int    `gorm:"column:seq;primaryKey;autoIncrement:false"`
	Actor     string `gorm:"column:actor;not null;index:idx_audits_actor_tick"`
	Action    string `gorm:"column:action;not null"`
	Target    string `gorm:"column:target;not null;index:idx_audits_target_tick"`
	FromValue int    `gorm:"column:from_value;not null"`
	ToValue   int    `gorm:"column:to_value;not null"`
	Reason    string `gorm:"column:reason"`
	RawJSON   string `gorm:"column:raw_json;type:text;not null"`
}

func (pgAudit) TableName() string { return "audits" }

type pgRepairCycle struct {
	Tick       int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	BuildingID string `gorm:"column:building_id;primaryKey"`
	Cost       int    `gorm:"column:cost;not null"`
	Healed     int    `gorm:"column:healed;not null"`
	Payers     int    `gorm:"column:payers;not null"`
	Evicted    int    `gorm:"column:evicted;not null"`
	Aborted    bool   `gorm:"column:aborted;not null"`
	Completed  bool   `gorm:"column:completed;not null"`
	RawJSON    string `gorm:"column:raw_json;type:text;not null"`
}

func (pgRepairCycle) TableName() string { return "repair_cycles" }

type pgRepairCharge struct {
	Tick       int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	BuildingID string `gorm:"column:building_id;primaryKey"`
	Seq        int    `gorm:"column:seq;primaryKey;autoIncrement:false"`
	AgentID    string `gorm:"column:agent_id;not null;index:idx_repair_charges_agent"`
	Amount     int    `gorm:"column:amount;not null"`
}

func (pgRepairCharge) TableName() string { return "repair_charges" }

type pgSnapshot struct {
	Tick      int64  `gorm:"column:tick;primaryKey;autoIncrement:false"`
	Path      string `gorm:"column:path;not null"`
	Players   int    `gorm:"column:players;not null"`
	Buildings int    `gorm:"column:buildings;not null"`
	Repairing int    `gorm:"column:repairing;not null"`
}

func (pgSnapshot) TableName() string { return "snapshots" }

type pgCatalog struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Digest    string    `gorm:"column:digest;not null"`
	JSON      string    `gorm:"column:json;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (pgCatalog) TableName() string { return "catalogs" }

// pgBatch accumulates rows between commits.
type pgBatch struct {
	ticks     []pgTick
	joins     []pgJoin
	leaves    []pgLeave
	actions   []pgAction
	audits    []pgAudit
	cycles    []pgRepairCycle
	charges   []pgRepairCharge
	snapshots []pgSnapshot
}

func (b *pgBatch) size() int {
	return len(b.ticks) + len(b.joins) + len(b.leaves) + len(b.actions) +
		len(b.audits) + len(b.cycles) + len(b.charges) + len(b.snapshots)
}

func (b *pgBatch) addTick(e world.TickLogEntry) {
	tick := int64(e.Tick)
	raw, _ := json.Marshal(e)
	b.ticks = append(b.ticks, pgTick{
		Tick:    tick,
		Digest:  e.Digest,
		Joins:   len(e.Joins),
		Leaves:  len(e.Leaves),
		Admin:   len(e.Admin),
		Actions: len(e.Actions),
		Repairs: len(e.Repairs),
		RawJSON: string(raw),
	})
	for _, j := range e.Joins {
		b.joins = append(b.joins, pgJoin{Tick: tick, AgentID: j.AgentID, Name: j.Name, Faction: j.Faction})
	}
	for _, id := range e.Leaves {
		b.leaves = append(b.leaves, pgLeave{Tick: tick, AgentID: id})
	}
	for i, a := range e.Actions {
		actJSON, _ := json.Marshal(a.Act)
		b.actions = append(b.actions, pgAction{Tick: tick, Seq: i, AgentID: a.AgentID, ActJSON: string(actJSON)})
	}
	for _, c := range e.Repairs {
		raw, _ := json.Marshal(c)
		b.cycles = append(b.cycles, pgRepairCycle{
			Tick:       tick,
			BuildingID: c.StructureID,
			Cost:       c.Cost,
			Healed:     c.Healed,
			Payers:     len(c.Charges),
			Evicted:    len(c.Evicted),
			Aborted:    c.Aborted,
			Completed:  c.Completed,
			RawJSON:    string(raw),
		})
		for i, ch := range c.Charges {
			b.charges = append(b.charges, pgRepairCharge{Tick: tick, BuildingID: c.StructureID, Seq: i, AgentID: ch.AgentID, Amount: ch.Amount})
		}
	}
}

func (b *pgBatch) addAudit(a world.AuditEntry, seq int) {
	raw, _ := json.Marshal(a)
	b.audits = append(b.audits, pgAudit{
		Tick:      int64(a.Tick),
		Seq:       seq,
		Actor:     a.Actor,
		Action:    a.Action,
		Target:    a.Target,
		FromValue: a.From,
		ToValue:   a.To,
		Reason:    a.Reason,
		RawJSON:   string(raw),
	})
}

func (b *pgBatch) addSnapshot(s snapshotRow) {
	b.snapshots = append(b.snapshots, pgSnapshot{
		Tick:      int64(s.Tick),
		Path:      s.Path,
		Players:   s.Players,
		Buildings: s.Buildings,
		Repairing: s.Repairing,
	})
}

// PostgresIndex mirrors SQLiteIndex on a shared Postgres database, for
// deployments that query the index from outside the server host.
type PostgresIndex struct {
	db     *gorm.DB
	logger *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	commitFail   atomic.Uint64
}

func OpenPostgres(dsn string, logger *log.Logger) (*PostgresIndex, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&pgTick{}, &pgJoin{}, &pgLeave{}, &pgAction{}, &pgAudit{},
		&pgRepairCycle{}, &pgRepairCharge{}, &pgSnapshot{}, &pgCatalog{},
	); err != nil {
		closeGorm(db)
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	p := &PostgresIndex{
		db:     db,
		logger: logger,
		ch:     make(chan req, 65536),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (p *PostgresIndex) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		closeGorm(p.db)
	})
	return nil
}

func (p *PostgresIndex) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(p.ch),
		QueueCapacity:     cap(p.ch),
		DropTickTotal:     p.dropTick.Load(),
		DropAuditTotal:    p.dropAudit.Load(),
		DropSnapshotTotal: p.dropSnapshot.Load(),
	}
}

// CommitFailures counts batches lost to a failed transaction.
func (p *PostgresIndex) CommitFailures() uint64 { return p.commitFail.Load() }

func (p *PostgresIndex) WriteTick(entry world.TickLogEntry) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	select {
	case p.ch <- req{kind: reqTick, tick: entry}:
	default:
		p.dropTick.Add(1)
	}
	return nil
}

func (p *PostgresIndex) WriteAudit(entry world.AuditEntry) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	select {
	case p.ch <- req{kind: reqAudit, audit: entry}:
	default:
		p.dropAudit.Add(1)
	}
	return nil
}

func (p *PostgresIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if p == nil || p.closed.Load() {
		return
	}
	select {
	case p.ch <- req{kind: reqSnapshot, snapshot: snapshotRowFor(path, snap)}:
	default:
		p.dropSnapshot.Add(1)
	}
}

// Flush blocks until everything queued before the call is committed.
func (p *PostgresIndex) Flush(ctx context.Context) error {
	if p == nil || p.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case p.ch <- req{kind: reqBarrier, done: done}:
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

func (p *PostgresIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if p == nil {
		return nil
	}
	now := time.Now().UTC()
	var rows []pgCatalog
	for _, r := range catalogRows(configDir, cats, tune) {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		rows = append(rows, pgCatalog{Name: r.name, Digest: r.digest, JSON: string(r.json), UpdatedAt: now})
	}
	if len(rows) == 0 {
		return nil
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

func (p *PostgresIndex) RepairHistory(ctx context.Context, buildingID string, limit int) ([]RepairCycleRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []pgRepairCycle
	err := p.db.WithContext(ctx).
		Where("building_id = ?", buildingID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "tick"}, Desc: true}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]RepairCycleRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, RepairCycleRow{
			Tick:       uint64(r.Tick),
			BuildingID: r.BuildingID,
			Cost:       r.Cost,
			Healed:     r.Healed,
			Payers:     r.Payers,
			Evicted:    r.Evicted,
			Aborted:    r.Aborted,
			Completed:  r.Completed,
		})
	}
	return out, nil
}

func (p *PostgresIndex) TotalCharged(ctx context.Context, agentID string) (int64, error) {
	var total int64
	err := p.db.WithContext(ctx).
		Model(&pgRepairCharge{}).
		Where("agent_id = ?", agentID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (p *PostgresIndex) commit(b *pgBatch) {
	if b.size() == 0 {
		return
	}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		// Re-indexing the same tick overwrites, like INSERT OR REPLACE on SQLite.
		upsert := func(rows any, n int) error {
			if n == 0 {
				return nil
			}
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(rows).Error
		}
		for _, step := range []struct {
			rows any
			n    int
		}{
			{&b.ticks, len(b.ticks)},
			{&b.joins, len(b.joins)},
			{&b.leaves, len(b.leaves)},
			{&b.actions, len(b.actions)},
			{&b.audits, len(b.audits)},
			{&b.cycles, len(b.cycles)},
			{&b.charges, len(b.charges)},
			{&b.snapshots, len(b.snapshots)},
		} {
			if err := upsert(step.rows, step.n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.commitFail.Add(1)
		if p.logger != nil {
			p.logger.Printf("postgres index commit failed rows=%d err=%v", b.size(), err)
		}
	}
	*b = pgBatch{}
}

func (p *PostgresIndex) loop() {
	var (
		batch         pgBatch
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
		lastCommit    = time.Now()

		lastAuditTick uint64
		auditSeq      int
	)

	for r := range p.ch {
		switch r.kind {
		case reqBarrier:
			p.commit(&batch)
			lastCommit = time.Now()
			close(r.done)
			continue
		case reqTick:
			batch.addTick(r.tick)
		case reqAudit:
			if r.audit.Tick != lastAuditTick {
				lastAuditTick = r.audit.Tick
				auditSeq = 0
			}
			batch.addAudit(r.audit, auditSeq)
			auditSeq++
		case reqSnapshot:
			batch.addSnapshot(r.snapshot)
		}
		if batch.size() >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			p.commit(&batch)
			lastCommit = time.Now()
		}
	}
	p.commit(&batch)
}
