// Package audit persists the investigation trail as rotated JSONL. The core
// engine stays side-effect free; the service facade emits events here so
// operators can reconstruct what the engine looked at and concluded.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/faultlinehq/faultline-engine/internal/utils"
)

const (
	auditFileName = "audit.jsonl"
	flushAt       = 100
	flushEvery    = time.Second
)

// Config controls where the trail lives and how it rotates.
type Config struct {
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (cfg *Config) withDefaults() {
	if cfg.Directory == "" {
		cfg.Directory = "logs"
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 10
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
}

// Sink buffers events and writes them as one JSON object per line through a
// size-rotated file. Writes are buffered; the buffer drains when it reaches
// flushAt events, on the flush ticker, and on Sync/Close.
type Sink struct {
	mu     sync.Mutex
	log    *zap.Logger
	buffer []*Event
	path   string

	ticker    *time.Ticker
	stopCh    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewSink opens the audit trail under cfg.Directory and starts the flush
// ticker. The returned sink must be closed to drain the final buffer.
func NewSink(cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.withDefaults()

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(cfg.Directory, auditFileName)

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// Every zap key except the event's own fields is omitted so each line is
	// exactly one Event object, parseable by ReadSince.
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        zapcore.OmitKey,
		LevelKey:       zapcore.OmitKey,
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		MessageKey:     zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), zapcore.InfoLevel)

	s := &Sink{
		log:    zap.New(core),
		buffer: make([]*Event, 0, flushAt),
		path:   path,
		ticker: time.NewTicker(flushEvery),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	go s.autoFlush()

	logger.Debug("audit sink ready", slog.String("path", path))
	return s, nil
}

// Path returns the current audit file location.
func (s *Sink) Path() string {
	return s.path
}

// Record buffers one event. Write failures surface on Sync.
func (s *Sink) Record(event *Event) {
	if event == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, event)
	if len(s.buffer) >= flushAt {
		s.flushLocked()
	}
}

// Sync drains the buffer and flushes the underlying writer.
func (s *Sink) Sync() error {
	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()
	return s.log.Sync()
}

// Close stops the flush ticker and drains remaining events. Safe to call
// more than once.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.ticker.Stop()
		err = s.Sync()
	})
	return err
}

// ReadSince returns entries newer than the lookback window ("15m", "24h",
// "7d"; default 24h). Only the current file is scanned; rotated backups are
// outside the API's window by design. Torn lines at rotation boundaries are
// skipped.
func (s *Sink) ReadSince(window string) ([]Event, error) {
	cutoff := time.Now().Add(-utils.ParseWindow(window, 24*time.Hour))

	if err := s.Sync(); err != nil {
		return nil, fmt.Errorf("flush audit sink: %w", err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit trail: %w", err)
	}
	return events, nil
}

func (s *Sink) flushLocked() {
	if len(s.buffer) == 0 {
		return
	}
	for _, event := range s.buffer {
		s.log.Info("", zap.Inline(event))
	}
	s.buffer = s.buffer[:0]
}

func (s *Sink) autoFlush() {
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			s.flushLocked()
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
