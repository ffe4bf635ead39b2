package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"repairworks.ai/internal/sim/world"
)

// TickLogFiles lists the tick log files of a world in chronological order.
// The hour-stamped names sort lexically.
func TickLogFiles(worldDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(worldDir, "events", "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadJSONLZstd decodes every line of a compressed JSONL file, calling fn for each.
// fn returning an error stops the scan.
func ReadJSONLZstd(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err)
		}
	}
	return sc.Err()
}

// ForEachTick replays tick entries from every log file of worldDir, in order.
func ForEachTick(worldDir string, fn func(world.TickLogEntry) error) error {
	files, err := TickLogFiles(worldDir)
	if err != nil {
		return err
	}
	for _, path := range files {
		err := ReadJSONLZstd(path, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
