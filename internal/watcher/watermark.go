package watcher

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watermark is the timestamp boundary between already-checked and not-yet-
// checked relay events. It never moves backward. With a state file configured
// it survives restarts, so a redeploy does not re-notify for history that was
// already checked.
type Watermark struct {
	mu        sync.Mutex
	current   time.Time
	stateFile string
	logger    *zap.Logger
}

// NewWatermark creates a watermark starting at now-lookback, or at the
// persisted value when a state file exists and is further ahead.
func NewWatermark(stateFile string, lookback time.Duration, logger *zap.Logger) *Watermark {
	w := &Watermark{
		current:   time.Now().Add(-lookback),
		stateFile: stateFile,
		logger:    logger,
	}

	if stateFile != "" {
		if ts, ok := w.load(); ok && ts.After(w.current) {
			w.current = ts
			logger.Info("watermark restored", zap.Time("watermark", ts))
		}
	}

	return w
}

// Current returns the watermark.
func (w *Watermark) Current() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Advance moves the watermark forward to t. Backward moves are ignored.
func (w *Watermark) Advance(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !t.After(w.current) {
		return
	}
	w.current = t

	if w.stateFile != "" {
		if err := w.save(t); err != nil {
			w.logger.Warn("failed to persist watermark", zap.Error(err))
		}
	}
}

// load reads the persisted watermark as unix epoch seconds.
func (w *Watermark) load() (time.Time, bool) {
	data, err := os.ReadFile(w.stateFile)
	if err != nil {
		return time.Time{}, false
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		w.logger.Warn("ignoring corrupt watermark state file",
			zap.String("file", w.stateFile),
			zap.Error(err),
		)
		return time.Time{}, false
	}

	return time.Unix(secs, 0), true
}

func (w *Watermark) save(t time.Time) error {
	dir := filepath.Dir(w.stateFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(w.stateFile, []byte(strconv.FormatInt(t.Unix(), 10)+"\n"), 0600)
}
