package world

import (
	"fmt"
	"sort"
	"sync/atomic"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/catalogs"
	"repairworks.ai/internal/sim/repair"
)

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs

	tick atomic.Uint64

	players map[string]*Player
	clients map[string]*clientState

	buildings map[string]*Building
	// buildingIDs is kept sorted; systems iterate buildings in this order.
	buildingIDs []string

	repair *repair.Engine

	inbox chan ActionEnvelope
	join  chan JoinRequest
	leave chan string
	admin chan adminReq
	snap  chan adminSnapshotReq
	stop  chan struct{}

	nextPlayerNum   atomic.Uint64
	nextBuildingNum atomic.Uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

type clientState struct {
	Out chan []byte
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("nil catalogs")
	}
	cfg.applyDefaults()
	for _, id := range cfg.StarterBuildings {
		if _, ok := cats.Structures.ByID[id]; !ok {
			return nil, fmt.Errorf("unknown starter building: %q", id)
		}
	}

	w := &World{
		cfg:       cfg,
		catalogs:  cats,
		players:   map[string]*Player{},
		clients:   map[string]*clientState{},
		buildings: map[string]*Building{},
		inbox:     make(chan ActionEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		admin:     make(chan adminReq, 64),
		snap:      make(chan adminSnapshotReq, 8),
		stop:      make(chan struct{}),
	}
	w.repair = repair.NewEngine(repair.Deps{
		Ledgers:   worldLedgers{w},
		Relations: worldRelations{w},
		Notifier:  worldNotifier{w},
	})
	return w, nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }

func (w *World) spawnBuilding(typ, owner string, hp int) (*Building, error) {
	def, ok := w.catalogs.Structures.ByID[typ]
	if !ok {
		return nil, fmt.Errorf("unknown building type: %q", typ)
	}
	if w.players[owner] == nil {
		return nil, fmt.Errorf("unknown owner: %q", owner)
	}
	if hp <= 0 {
		return nil, fmt.Errorf("building must spawn with hp > 0")
	}
	id := fmt.Sprintf("B%06d", w.nextBuildingNum.Add(1))
	b := newBuilding(id, def, owner, hp)
	w.addBuilding(b)
	return b, nil
}

func (w *World) addBuilding(b *Building) {
	b.onHPChange = w.onBuildingHPChange
	w.buildings[b.id] = b
	i := sort.SearchStrings(w.buildingIDs, b.id)
	w.buildingIDs = append(w.buildingIDs, "")
	copy(w.buildingIDs[i+1:], w.buildingIDs[i:])
	w.buildingIDs[i] = b.id
}

func (w *World) removeBuilding(id string) {
	if _, ok := w.buildings[id]; !ok {
		return
	}
	delete(w.buildings, id)
	i := sort.SearchStrings(w.buildingIDs, id)
	if i < len(w.buildingIDs) && w.buildingIDs[i] == id {
		w.buildingIDs = append(w.buildingIDs[:i], w.buildingIDs[i+1:]...)
	}
}

// onBuildingHPChange is the damage hook: it audits every HP change and
// removes buildings that reach 0 HP, taking their repair state with them.
func (w *World) onBuildingHPChange(b *Building, from, to int) {
	nowTick := w.tick.Load()
	reason := "damage"
	if to > from {
		reason = "heal"
	}
	w.audit(AuditEntry{
		Tick:   nowTick,
		Actor:  b.owner,
		Action: AuditDamage,
		Target: b.id,
		From:   from,
		To:     to,
		Reason: reason,
	})
	if to > 0 {
		return
	}
	w.audit(AuditEntry{Tick: nowTick, Actor: b.owner, Action: AuditDestroyed, Target: b.id, From: from})
	w.removeBuilding(b.id)
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(e)
}

func (w *World) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
