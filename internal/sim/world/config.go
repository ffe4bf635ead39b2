package world

import "repairworks.ai/internal/sim/tuning"

type WorldConfig struct {
	ID         string
	TickRateHz int

	StartingCash   int
	DefaultFaction string

	// Building types granted to newly joined players, at full HP.
	// If nil, defaults are applied; if non-nil but empty, new players get nothing.
	StarterBuildings []string

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	MaxEventsPerObs    int
}

// ConfigFromTuning maps tuning.yaml values onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	starters := make([]string, len(t.StarterBuildings))
	copy(starters, t.StarterBuildings)
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		StartingCash:       t.StartingCash,
		DefaultFaction:     t.DefaultFaction,
		StarterBuildings:   starters,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		MaxEventsPerObs:    t.MaxEventsPerObs,
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.StartingCash < 0 {
		c.StartingCash = 0
	}
	if c.DefaultFaction == "" {
		c.DefaultFaction = d.DefaultFaction
	}
	if c.StarterBuildings == nil {
		c.StarterBuildings = d.StarterBuildings
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = d.SnapshotEveryTicks
	}
	if c.MaxEventsPerObs <= 0 {
		c.MaxEventsPerObs = d.MaxEventsPerObs
	}
}
