package world

import "repairworks.ai/internal/protocol"

func (w *World) buildObs(p *Player, nowTick uint64) protocol.ObsMsg {
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		AgentID:         p.ID,
		WorldID:         w.cfg.ID,
		Self: protocol.SelfObs{
			Cash:     p.Cash,
			WinState: p.WinState,
			Faction:  p.Faction,
		},
	}
	if len(p.Stances) > 0 {
		obs.Self.Stances = make(map[string]string, len(p.Stances))
		for k, v := range p.Stances {
			obs.Self.Stances[k] = v
		}
	}

	for _, id := range w.sortedPlayerIDs() {
		if id == p.ID {
			continue
		}
		other := w.players[id]
		obs.Players = append(obs.Players, protocol.PlayerObs{
			ID:       other.ID,
			Name:     other.Name,
			WinState: other.WinState,
			Stance:   other.StanceToward(p.ID),
		})
	}

	for _, id := range w.buildingIDs {
		b := w.buildings[id]
		bo := protocol.BuildingObs{
			ID:         b.id,
			Type:       b.Type(),
			Owner:      b.owner,
			HP:         b.hp,
			MaxHP:      b.MaxHP(),
			Value:      b.AssessedValue(),
			Repairable: b.Repairable(),
		}
		if b.repairs != nil {
			bo.Repairers = b.repairs.Members()
			bo.Countdown = b.repairs.Countdown()
		}
		obs.Buildings = append(obs.Buildings, bo)
	}

	obs.Events = p.TakeEvents(w.cfg.MaxEventsPerObs)
	return obs
}
