// ABOUTME: Optional JSON-lines recorder for raw agent activities
// ABOUTME: Disabled recorders are valid and drop everything silently

package debuglog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Recorder appends each raw activity to a JSON-lines file for offline
// debugging. The zero value and a nil *Recorder are both disabled recorders.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

type record struct {
	ReceivedAt time.Time       `json:"received_at"`
	Activity   json.RawMessage `json:"activity"`
}

// Open creates a recorder appending to path. An empty path returns a
// disabled recorder and no error.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening debug log %s: %w", path, err)
	}
	return &Recorder{f: f, logger: logger.With("component", "debuglog")}, nil
}

// Record writes one raw activity as a JSON line. Write failures are logged,
// never propagated; debug logging must not break the chat.
func (r *Recorder) Record(raw json.RawMessage) {
	if r == nil || r.f == nil {
		return
	}

	line, err := json.Marshal(record{ReceivedAt: time.Now().UTC(), Activity: raw})
	if err != nil {
		r.logger.Warn("failed to encode activity record", "error", err)
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.Write(line); err != nil {
		r.logger.Warn("failed to write activity record", "error", err)
	}
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.f.Close()
	r.f = nil
	return err
}
