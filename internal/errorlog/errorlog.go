// Package errorlog records recovered processing anomalies: conditions the
// batch handles locally (skipped inline parts, header fallbacks) that are
// worth auditing after the fact.
package errorlog

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Anomaly kinds.
const (
	KindInlineSkipped  = "inline_attachment_skipped"
	KindHeaderFallback = "header_fallback"
)

// Entry records one recovered anomaly.
type Entry struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Filename  string    `json:"filename,omitempty"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
}

// FileLogger appends anomaly entries to a JSON-lines file. Recording is best
// effort: a failure to persist an entry is logged and swallowed, it never
// fails the batch.
type FileLogger struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileLogger creates a logger writing to path.
func NewFileLogger(path string, logger *slog.Logger) *FileLogger {
	return &FileLogger{path: path, logger: logger}
}

// Record stamps the entry with an ID and timestamp and appends it.
func (fl *FileLogger) Record(e Entry) {
	e.ID = uuid.New().String()
	e.LoggedAt = time.Now().UTC()

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if err := fl.append(e); err != nil {
		fl.logger.Warn("failed to record anomaly",
			"kind", e.Kind,
			"message_id", e.MessageID,
			"error", err,
		)
	}
}

func (fl *FileLogger) append(e Entry) error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(fl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(append(line, '\n')); err != nil {
		return err
	}
	return w.Flush()
}
