package world

import (
	"fmt"
	"sort"

	"repairworks.ai/internal/persistence/snapshot"
	"repairworks.ai/internal/sim/repair"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		StartingCash:       w.cfg.StartingCash,
		DefaultFaction:     w.cfg.DefaultFaction,
		StarterBuildings:   append([]string(nil), w.cfg.StarterBuildings...),
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		MaxEventsPerObs:    w.cfg.MaxEventsPerObs,
		StructuresDigest:   w.catalogs.Structures.Digest,
		Counters: snapshot.CountersV1{
			NextPlayer:   w.nextPlayerNum.Load(),
			NextBuilding: w.nextBuildingNum.Load(),
		},
	}

	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		pv := snapshot.PlayerV1{
			ID:       p.ID,
			Name:     p.Name,
			Faction:  p.Faction,
			Cash:     p.Cash,
			WinState: p.WinState,
		}
		if len(p.Stances) > 0 {
			pv.Stances = make(map[string]string, len(p.Stances))
			for k, v := range p.Stances {
				pv.Stances[k] = v
			}
		}
		s.Players = append(s.Players, pv)
	}

	for _, id := range w.buildingIDs {
		b := w.buildings[id]
		bv := snapshot.BuildingV1{ID: b.id, Type: b.Type(), Owner: b.owner, HP: b.hp}
		if b.repairs != nil {
			bv.Repair = &snapshot.RepairV1{
				Members:   b.repairs.Members(),
				Countdown: b.repairs.Countdown(),
			}
		}
		s.Buildings = append(s.Buildings, bv)
	}
	return s
}

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}

	for _, typ := range s.StarterBuildings {
		if _, ok := w.catalogs.Structures.ByID[typ]; !ok {
			return fmt.Errorf("snapshot: unknown starter building %q", typ)
		}
	}

	players := map[string]*Player{}
	for _, pv := range s.Players {
		if pv.ID == "" {
			return fmt.Errorf("snapshot: player with empty id")
		}
		if _, dup := players[pv.ID]; dup {
			return fmt.Errorf("snapshot: duplicate player %s", pv.ID)
		}
		if !validWinState(pv.WinState) {
			return fmt.Errorf("snapshot: player %s: bad win state %q", pv.ID, pv.WinState)
		}
		p := &Player{
			ID:       pv.ID,
			Name:     pv.Name,
			Faction:  pv.Faction,
			Cash:     pv.Cash,
			WinState: pv.WinState,
		}
		for other, st := range pv.Stances {
			if !validStance(st) {
				return fmt.Errorf("snapshot: player %s: bad stance %q", pv.ID, st)
			}
			p.setStance(other, st)
		}
		players[p.ID] = p
	}

	buildings := make([]*Building, 0, len(s.Buildings))
	seen := map[string]bool{}
	for _, bv := range s.Buildings {
		def, ok := w.catalogs.Structures.ByID[bv.Type]
		if !ok {
			return fmt.Errorf("snapshot: building %s: unknown type %q", bv.ID, bv.Type)
		}
		if bv.ID == "" || seen[bv.ID] {
			return fmt.Errorf("snapshot: bad or duplicate building id %q", bv.ID)
		}
		seen[bv.ID] = true
		if players[bv.Owner] == nil {
			return fmt.Errorf("snapshot: building %s: unknown owner %q", bv.ID, bv.Owner)
		}
		b := newBuilding(bv.ID, def, bv.Owner, bv.HP)
		if b.Destroyed() {
			continue
		}
		if b.repairs != nil && bv.Repair != nil {
			countdown := bv.Repair.Countdown
			if countdown > def.Repairable.RepairInterval {
				countdown = def.Repairable.RepairInterval
			}
			// Dedupe before capping so a repeated id can't push out a real member.
			sub := repair.RestoreSubscription(bv.Repair.Members, countdown)
			if members := sub.Members(); len(members) > def.Repairable.MaxRepairers {
				sub = repair.RestoreSubscription(members[:def.Repairable.MaxRepairers], countdown)
			}
			b.repairs = sub
		}
		buildings = append(buildings, b)
	}
	sort.Slice(buildings, func(i, j int) bool { return buildings[i].id < buildings[j].id })

	w.cfg.TickRateHz = s.TickRate
	w.cfg.StartingCash = s.StartingCash
	w.cfg.DefaultFaction = s.DefaultFaction
	w.cfg.StarterBuildings = append([]string(nil), s.StarterBuildings...)
	w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	w.cfg.MaxEventsPerObs = s.MaxEventsPerObs
	w.cfg.applyDefaults()

	w.players = players
	w.clients = map[string]*clientState{}
	w.buildings = map[string]*Building{}
	w.buildingIDs = w.buildingIDs[:0]
	for _, b := range buildings {
		w.addBuilding(b)
	}

	w.nextPlayerNum.Store(s.Counters.NextPlayer)
	w.nextBuildingNum.Store(s.Counters.NextBuilding)
	w.tick.Store(s.Header.Tick + 1)
	return nil
}
