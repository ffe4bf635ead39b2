package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate       int    `json:"tick_rate_hz"`
	StartingCash   int    `json:"starting_cash"`
	DefaultFaction string `json:"default_faction"`

	// Operational parameters (captured for deterministic replay/resume).
	StarterBuildings   []string `json:"starter_buildings,omitempty"`
	SnapshotEveryTicks int      `json:"snapshot_every_ticks,omitempty"`
	MaxEventsPerObs    int      `json:"max_events_per_obs,omitempty"`

	// StructuresDigest pins the catalog the buildings were priced against.
	StructuresDigest string `json:"structures_digest"`

	Players   []PlayerV1   `json:"players"`
	Buildings []BuildingV1 `json:"buildings"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextPlayer   uint64 `json:"next_player"`
	NextBuilding uint64 `json:"next_building"`
}

type PlayerV1 struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Faction  string            `json:"faction"`
	Cash     int               `json:"cash"`
	WinState string            `json:"win_state"`
	Stances  map[string]string `json:"stances,omitempty"`
}

type BuildingV1 struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Owner string `json:"owner"`
	HP    int    `json:"hp"`

	// Repair is nil for building types without a repair profile.
	Repair *RepairV1 `json:"repair,omitempty"`
}

type RepairV1 struct {
	Members   []string `json:"members,omitempty"`
	Countdown int      `json:"countdown"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader returns only the JSON header line, without decoding the body.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
