package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"repairworks.ai/internal/protocol"
	"repairworks.ai/internal/sim/catalogs"
)

const maxNameLen = 40

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "player"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

func (w *World) joinPlayer(name, faction string, out chan []byte) JoinResponse {
	idNum := w.nextPlayerNum.Add(1)
	p := &Player{
		ID:       fmt.Sprintf("P%d", idNum),
		Name:     normalizeName(name),
		Faction:  strings.TrimSpace(faction),
		Cash:     w.cfg.StartingCash,
		WinState: WinUndecided,
	}
	if p.Faction == "" {
		p.Faction = w.cfg.DefaultFaction
	}
	w.players[p.ID] = p
	if out != nil {
		w.clients[p.ID] = &clientState{Out: out}
	}

	// Starter types were checked in New.
	for _, typ := range w.cfg.StarterBuildings {
		def := w.catalogs.Structures.ByID[typ]
		_, _ = w.spawnBuilding(typ, p.ID, def.MaxHP)
	}

	welcome := w.buildWelcome(p.ID)
	catalogMsgs, tuningDigest := w.buildCatalogMsgs()
	welcome.Catalogs.TuningDigest = tuningDigest
	return JoinResponse{Welcome: welcome, Catalogs: catalogMsgs}
}

func (w *World) buildWelcome(agentID string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         agentID,
		WorldParams: protocol.WorldParams{
			WorldID:      w.cfg.ID,
			TickRateHz:   w.cfg.TickRateHz,
			StartingCash: w.cfg.StartingCash,
		},
		Catalogs: protocol.CatalogDigests{
			StructuresDigest: w.catalogs.Structures.Digest,
		},
	}
}

type tuningCatalog struct {
	TickRateHz         int      `json:"tick_rate_hz"`
	StartingCash       int      `json:"starting_cash"`
	DefaultFaction     string   `json:"default_faction"`
	StarterBuildings   []string `json:"starter_buildings"`
	SnapshotEveryTicks int      `json:"snapshot_every_ticks"`
	MaxEventsPerObs    int      `json:"max_events_per_obs"`
}

func (w *World) buildCatalogMsgs() ([]protocol.CatalogMsg, string) {
	tc := tuningCatalog{
		TickRateHz:         w.cfg.TickRateHz,
		StartingCash:       w.cfg.StartingCash,
		DefaultFaction:     w.cfg.DefaultFaction,
		StarterBuildings:   w.cfg.StarterBuildings,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		MaxEventsPerObs:    w.cfg.MaxEventsPerObs,
	}
	b, _ := json.Marshal(tc)
	sum := sha256.Sum256(b)
	tuningDigest := hex.EncodeToString(sum[:])

	defs := make([]catalogs.StructureDef, 0, len(w.catalogs.Structures.IDs))
	for _, id := range w.catalogs.Structures.IDs {
		defs = append(defs, w.catalogs.Structures.ByID[id])
	}

	return []protocol.CatalogMsg{
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "structures",
			Digest:          w.catalogs.Structures.Digest,
			Data:            defs,
		},
		{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            "tuning",
			Digest:          tuningDigest,
			Data:            tc,
		},
	}, tuningDigest
}
