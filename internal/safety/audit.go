package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ErrNilWriter is returned by AuditLogger.Log when the logger was constructed
// with a nil writer.
var ErrNilWriter = errors.New("audit logger: writer is nil")

// auditFileMode keeps the query log private to the exporter's user.
const auditFileMode = 0o600

// AuditEntry records one spin-state query answered over MCP.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Tool      string    `json:"tool"`
	// Device is the identifier the caller asked about, as given.
	Device string `json:"device,omitempty"`
	// Resolved is the polled device Device matched, e.g. "sdb" -> "/dev/sdb".
	Resolved string `json:"resolved,omitempty"`
	// State is the spin state returned for a single-device query.
	State string `json:"state,omitempty"`
	// Devices is the number of devices reported by a full status query.
	Devices  int           `json:"devices,omitempty"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration_ns"`
}

// AuditLogger appends AuditEntry records as JSON lines. It is safe for
// concurrent use; each entry is written with a single Write call.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewAuditLogger returns an AuditLogger that writes to w. A nil w yields a
// nil logger; Log on a nil logger returns ErrNilWriter.
func NewAuditLogger(w io.Writer) *AuditLogger {
	if w == nil {
		return nil
	}
	return &AuditLogger{w: w}
}

// OpenAuditLog opens (creating if needed) the audit file at path for
// appending and returns a logger over it. The caller closes the file.
func OpenAuditLog(path string) (*AuditLogger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewAuditLogger(f), f, nil
}

// Log writes entry as one JSON line. A zero Timestamp is set to now.
func (l *AuditLogger) Log(entry AuditEntry) error {
	if l == nil || l.w == nil {
		return ErrNilWriter
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(data)
	return err
}
