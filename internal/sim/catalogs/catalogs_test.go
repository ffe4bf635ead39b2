package catalogs

import (
	"strings"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if len(c.Structures.IDs) == 0 || c.Structures.Digest == "" {
		t.Fatalf("empty structure catalog: %+v", c.Structures)
	}
	for _, id := range c.Structures.IDs {
		d := c.Structures.ByID[id]
		if d.Repairable != nil {
			if err := d.Repairable.Validate(); err != nil {
				t.Fatalf("%s: %v", id, err)
			}
		}
	}
}

func TestParseStructures_RepairableOverlaysDefaults(t *testing.T) {
	var out StructureCatalog
	raw := `[
	  {"id":"powr","cost":300,"max_hp":400,"repairable":{"repair_step":10}},
	  {"id":"fact","cost":2500,"custom_sell_value":1000,"max_hp":1000,"repairable":{}},
	  {"id":"wall","cost":100,"max_hp":200}
	]`
	if err := parseStructures([]byte(raw), &out); err != nil {
		t.Fatalf("parse: %v", err)
	}
	powr := out.ByID["powr"].Repairable
	if powr == nil || powr.RepairStep != 10 || powr.RepairInterval != 24 || powr.RepairPercent != 20 || powr.IndicatorStyle != "player" {
		t.Fatalf("powr overlay: %+v", powr)
	}
	if out.ByID["fact"].Repairable == nil {
		t.Fatalf("empty repairable object must enable defaults")
	}
	if out.ByID["wall"].Repairable != nil {
		t.Fatalf("wall must not be repairable")
	}
	if got := out.ByID["fact"].SellValue(); got != 1000 {
		t.Fatalf("custom sell value: got %d", got)
	}
	if got := out.ByID["powr"].SellValue(); got != 300 {
		t.Fatalf("sell value falls back to cost: got %d", got)
	}
	if strings.Join(out.IDs, ",") != "fact,powr,wall" {
		t.Fatalf("ids: %v", out.IDs)
	}
}

func TestParseStructures_FailsFastOnBadRepairProfile(t *testing.T) {
	cases := []string{
		`[{"id":"powr","cost":300,"max_hp":400,"repairable":{"repair_interval":-1}}]`,
		`[{"id":"powr","cost":300,"max_hp":400,"repairable":{"max_repairers":0}}]`,
		`[{"id":"powr","cost":300,"max_hp":400,"repairable":{"repair_step":"fast"}}]`,
		`[{"id":"powr","cost":300,"max_hp":0}]`,
		`[{"id":"","cost":300,"max_hp":10}]`,
		`[{"id":"a","cost":1,"max_hp":10},{"id":"a","cost":1,"max_hp":10}]`,
	}
	for _, raw := range cases {
		var out StructureCatalog
		if err := parseStructures([]byte(raw), &out); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}
