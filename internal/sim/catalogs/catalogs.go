package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"repairworks.ai/internal/sim/repair"
)

type Catalogs struct {
	Structures StructureCatalog
}

type StructureCatalog struct {
	// IDs is sorted; iteration over ByID should go through it.
	IDs    []string
	ByID   map[string]StructureDef
	Digest string
}

type StructureDef struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Cost            int    `json:"cost"`
	CustomSellValue *int   `json:"custom_sell_value,omitempty"`
	MaxHP           int    `json:"max_hp"`

	// Absent means the structure cannot be repaired. Keys missing from the
	// object fall back to repair.DefaultConfig.
	RepairableRaw json.RawMessage `json:"repairable,omitempty"`
	Repairable    *repair.Config  `json:"-"`
}

// SellValue is the assessed value used to price repairs.
func (d StructureDef) SellValue() int {
	if d.CustomSellValue != nil {
		return *d.CustomSellValue
	}
	return d.Cost
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadStructures(filepath.Join(configDir, "structures.json"), &c.Structures); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadStructures(path string, out *StructureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return parseStructures(raw, out)
}

func parseStructures(raw []byte, out *StructureCatalog) error {
	out.Digest = sha256Hex(raw)

	var defs []StructureDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("structures.json: %w", err)
	}
	out.ByID = map[string]StructureDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("structures.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("structures.json: duplicate id %s", d.ID)
		}
		if d.MaxHP <= 0 {
			return fmt.Errorf("structures.json: %s: max_hp must be > 0", d.ID)
		}
		if d.Cost < 0 {
			return fmt.Errorf("structures.json: %s: cost must be >= 0", d.ID)
		}
		if d.CustomSellValue != nil && *d.CustomSellValue < 0 {
			return fmt.Errorf("structures.json: %s: custom_sell_value must be >= 0", d.ID)
		}
		if len(d.RepairableRaw) > 0 && !bytes.Equal(bytes.TrimSpace(d.RepairableRaw), []byte("null")) {
			cfg := repair.DefaultConfig()
			if err := json.Unmarshal(d.RepairableRaw, &cfg); err != nil {
				return fmt.Errorf("structures.json: %s: repairable: %w", d.ID, err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("structures.json: %s: repairable: %w", d.ID, err)
			}
			d.Repairable = &cfg
		}
		out.ByID[d.ID] = d
	}

	out.IDs = make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		out.IDs = append(out.IDs, id)
	}
	sort.Strings(out.IDs)
	return nil
}
