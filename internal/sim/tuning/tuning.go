package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz     int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	StartingCash   int    `yaml:"starting_cash" json:"starting_cash"`
	DefaultFaction string `yaml:"default_faction" json:"default_faction"`

	StarterBuildings []string `yaml:"starter_buildings" json:"starter_buildings"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	MaxEventsPerObs    int `yaml:"max_events_per_obs" json:"max_events_per_obs"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         25,
		StartingCash:       5000,
		DefaultFaction:     "allies",
		StarterBuildings:   []string{"fact", "powr"},
		SnapshotEveryTicks: 3000,
		MaxEventsPerObs:    64,
	}
}

// Load overlays tuning.yaml onto Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in [1, 1000], got %d", t.TickRateHz)
	}
	if t.StartingCash < 0 {
		return fmt.Errorf("starting_cash must be >= 0, got %d", t.StartingCash)
	}
	if strings.TrimSpace(t.DefaultFaction) == "" {
		return fmt.Errorf("default_faction must not be empty")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0, got %d", t.SnapshotEveryTicks)
	}
	if t.MaxEventsPerObs <= 0 {
		return fmt.Errorf("max_events_per_obs must be > 0, got %d", t.MaxEventsPerObs)
	}
	for i, id := range t.StarterBuildings {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("starter_buildings[%d] must not be empty", i)
		}
	}
	return nil
}
