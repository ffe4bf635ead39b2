package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"repairworks.ai/internal/sim/world"
)

// LoggerOptions tunes file rotation. Zero value rotates hourly on wall-clock UTC.
type LoggerOptions struct {
	// Now overrides the clock used to pick the rotation bucket.
	Now func() time.Time
	// OnRotate is called with the path of each file after it is closed.
	OnRotate func(path string)
}

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	opts    LoggerOptions

	mu      sync.Mutex
	curHour string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return NewJSONLZstdWriterWithOptions(baseDir, prefix, LoggerOptions{})
}

func NewJSONLZstdWriterWithOptions(baseDir, prefix string, opts LoggerOptions) *JSONLZstdWriter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		opts:    opts,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.opts.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Appending after a restart yields concatenated zstd frames, which the reader accepts.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.opts.OnRotate != nil && w.curPath != "" {
			w.opts.OnRotate(w.curPath)
		}
	}
	w.w = nil
	w.curHour = ""
	w.curPath = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(worldDir string) *TickLogger {
	return NewTickLoggerWithOptions(worldDir, LoggerOptions{})
}

func NewTickLoggerWithOptions(worldDir string, opts LoggerOptions) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(worldDir, "events"), "events", opts)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.w.Write(v) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// AuditLogger writes audit JSONL entries (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return NewAuditLoggerWithOptions(worldDir, LoggerOptions{})
}

func NewAuditLoggerWithOptions(worldDir string, opts LoggerOptions) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(worldDir, "audit"), "audit", opts)}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }
