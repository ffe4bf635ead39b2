package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/repair"
	"repairworks.ai/internal/sim/tuning"
	"repairworks.ai/internal/sim/world"
)

// D1Config points the index at an HTTP batch-ingest endpoint (e.g. a Worker
// in front of Cloudflare D1) instead of a local SQLite file.
type D1Config struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxPending bounds the retained batch while the endpoint is failing.
	MaxPending int
	Logger     *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int

	flushOK      atomic.Uint64
	flushFail    atomic.Uint64
	queueDropped atomic.Uint64
	batchDropped atomic.Uint64
}

type D1Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	FlushOKTotal      uint64 `json:"flush_ok_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	BatchDroppedTotal uint64 `json:"batch_dropped_total"`
}

// d1Event ids are assigned once at enqueue so the ingest side can dedupe retried batches.
type d1Event struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type d1TickPayload struct {
	Tick    uint64                 `json:"tick"`
	Digest  string                 `json:"digest"`
	Joins   []world.RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string               `json:"leaves,omitempty"`
	Admin   []world.AdminOp        `json:"admin,omitempty"`
	Actions []world.RecordedAction `json:"actions,omitempty"`
	Repairs []repair.Cycle         `json:"repairs,omitempty"`
}

type d1AuditPayload struct {
	Tick   uint64           `json:"tick"`
	Seq    int              `json:"seq"`
	Actor  string           `json:"actor"`
	Action string           `json:"action"`
	Target string           `json:"target"`
	From   int              `json:"from"`
	To     int              `json:"to"`
	Reason string           `json:"reason,omitempty"`
	Raw    world.AuditEntry `json:"raw"`
}

type d1SnapshotPayload struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Players   int    `json:"players"`
	Buildings int    `json:"buildings"`
	Repairing int    `json:"repairing"`
}

type d1CatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 16 * cfg.BatchSize
	}

	d := &D1Index{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan d1Event, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Stats() D1Stats {
	if d == nil {
		return D1Stats{}
	}
	return D1Stats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		FlushOKTotal:      d.flushOK.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		QueueDroppedTotal: d.queueDropped.Load(),
		BatchDroppedTotal: d.batchDropped.Load(),
	}
}

func (d *D1Index) WriteTick(entry world.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := d1TickPayload{
		Tick:    entry.Tick,
		Digest:  entry.Digest,
		Joins:   entry.Joins,
		Leaves:  entry.Leaves,
		Admin:   entry.Admin,
		Actions: entry.Actions,
		Repairs: entry.Repairs,
	}
	d.enqueue(d1Event{Kind: "tick", WorldID: d.cfg.WorldID, Payload: p})
	return nil
}

func (d *D1Index) WriteAudit(entry world.AuditEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	seq := d.nextAuditSeq(entry.Tick)
	p := d1AuditPayload{
		Tick:   entry.Tick,
		Seq:    seq,
		Actor:  entry.Actor,
		Action: entry.Action,
		Target: entry.Target,
		From:   entry.From,
		To:     entry.To,
		Reason: entry.Reason,
		Raw:    entry,
	}
	d.enqueue(d1Event{Kind: "audit", WorldID: d.cfg.WorldID, Payload: p})
	return nil
}

func (d *D1Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil || d.closed.Load() {
		return
	}
	p := d1SnapshotPayload{
		Tick:      snap.Header.Tick,
		Path:      path,
		Players:   len(snap.Players),
		Buildings: len(snap.Buildings),
	}
	for _, b := range snap.Buildings {
		if b.Repair != nil && len(b.Repair.Members) > 0 {
			p.Repairing++
		}
	}
	d.enqueue(d1Event{Kind: "snapshot", WorldID: d.cfg.WorldID, Payload: p})
}

func (d *D1Index) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, cats, tune) {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		d.enqueue(d1Event{Kind: "catalog", WorldID: d.cfg.WorldID, Payload: d1CatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.json),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *D1Index) nextAuditSeq(tick uint64) int {
	d.auditMu.Lock()
	defer d.auditMu.Unlock()
	if tick != d.lastAuditTick {
		d.lastAuditTick = tick
		d.auditSeq = 0
	}
	d.auditSeq++
	return d.auditSeq
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil || d.closed.Load() {
		return
	}
	ev.ID = uuid.NewString()
	select {
	case d.ch <- ev:
	default:
		d.queueDropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s world=%s", ev.Kind, ev.WorldID)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	// A failed batch is kept and retried on the next flush; only the oldest
	// events are shed once the backlog exceeds MaxPending.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			if over := len(batch) - d.cfg.MaxPending; over > 0 {
				d.batchDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushOK.Add(1)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("x-rw-index-token", d.cfg.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
