package repair

import "fmt"

// Config is the immutable repair profile shared by every building of one type.
type Config struct {
	RepairPercent      int    `json:"repair_percent" yaml:"repair_percent"`
	RepairInterval     int    `json:"repair_interval" yaml:"repair_interval"`
	RepairStep         int    `json:"repair_step" yaml:"repair_step"`
	MaxRepairers       int    `json:"max_repairers" yaml:"max_repairers"`
	ExtraRepairPercent int    `json:"extra_repair_percent" yaml:"extra_repair_percent"`
	IndicatorStyle     string `json:"indicator_style" yaml:"indicator_style"`
}

func DefaultConfig() Config {
	return Config{
		RepairPercent:      20,
		RepairInterval:     24,
		RepairStep:         7,
		MaxRepairers:       3,
		ExtraRepairPercent: 10,
		IndicatorStyle:     "player",
	}
}

func (c Config) Validate() error {
	if c.RepairInterval < 0 {
		return fmt.Errorf("repair_interval must be >= 0, got %d", c.RepairInterval)
	}
	if c.RepairStep <= 0 {
		return fmt.Errorf("repair_step must be > 0, got %d", c.RepairStep)
	}
	if c.RepairPercent < 0 {
		return fmt.Errorf("repair_percent must be >= 0, got %d", c.RepairPercent)
	}
	if c.ExtraRepairPercent < 0 {
		return fmt.Errorf("extra_repair_percent must be >= 0, got %d", c.ExtraRepairPercent)
	}
	if c.MaxRepairers <= 0 {
		return fmt.Errorf("max_repairers must be > 0, got %d", c.MaxRepairers)
	}
	return nil
}
