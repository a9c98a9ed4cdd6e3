package safety

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func Test_AuditLogger_Log_Cases(t *testing.T) {
	tests := []struct {
		name     string
		entry    AuditEntry
		validate func(t *testing.T, parsed map[string]any)
	}{
		{
			name: "device query records device and state",
			entry: AuditEntry{
				Timestamp: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
				Tool:      "disk_spin_device",
				Device:    "sda",
				Resolved:  "/dev/sda",
				State:     "idle",
				Result:    "ok",
				Duration:  250 * time.Millisecond,
			},
			validate: func(t *testing.T, parsed map[string]any) {
				t.Helper()
				if parsed["device"] != "sda" || parsed["resolved"] != "/dev/sda" || parsed["state"] != "idle" {
					t.Errorf("device fields = %v", parsed)
				}
				if parsed["duration_ns"] != float64(250*time.Millisecond) {
					t.Errorf("duration_ns = %v", parsed["duration_ns"])
				}
				if parsed["timestamp"] != "2026-01-15T10:30:00Z" {
					t.Errorf("timestamp = %v", parsed["timestamp"])
				}
			},
		},
		{
			name:  "status query omits device fields",
			entry: AuditEntry{Tool: "disk_spin_status", Devices: 3, Result: "ok"},
			validate: func(t *testing.T, parsed map[string]any) {
				t.Helper()
				if parsed["devices"] != float64(3) {
					t.Errorf("devices = %v, want 3", parsed["devices"])
				}
				for _, key := range []string{"device", "resolved", "state"} {
					if _, ok := parsed[key]; ok {
						t.Errorf("unexpected key %q in %v", key, parsed)
					}
				}
			},
		},
		{
			name:  "zero timestamp is filled in",
			entry: AuditEntry{Tool: "disk_spin_status", Result: "ok"},
			validate: func(t *testing.T, parsed map[string]any) {
				t.Helper()
				ts, err := time.Parse(time.RFC3339Nano, parsed["timestamp"].(string))
				if err != nil || ts.IsZero() || time.Since(ts) > time.Minute {
					t.Errorf("timestamp = %v (%v), want about now", parsed["timestamp"], err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewAuditLogger(&buf).Log(tt.entry); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			output := buf.String()
			if !strings.HasSuffix(output, "\n") {
				t.Errorf("output not newline-terminated: %q", output)
			}
			var parsed map[string]any
			if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &parsed); err != nil {
				t.Fatalf("output is not valid JSON: %v\noutput: %s", err, output)
			}
			if parsed["tool"] != tt.entry.Tool || parsed["result"] != tt.entry.Result {
				t.Errorf("tool/result = %v/%v", parsed["tool"], parsed["result"])
			}
			tt.validate(t, parsed)
		})
	}
}

func Test_AuditLogger_Log_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(&buf)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Log(AuditEntry{Tool: "disk_spin_status", Devices: 4, Result: "ok"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != n {
		t.Fatalf("expected %d lines, got %d", n, len(lines))
	}
	for i, line := range lines {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func Test_AuditLogger_NilWriter(t *testing.T) {
	logger := NewAuditLogger(nil)
	if logger != nil {
		t.Fatal("NewAuditLogger(nil) should return nil")
	}
	if err := logger.Log(AuditEntry{Tool: "disk_spin_status"}); !errors.Is(err, ErrNilWriter) {
		t.Errorf("Log() on nil logger = %v, want ErrNilWriter", err)
	}
}

func Test_OpenAuditLog_Cases(t *testing.T) {
	t.Run("appends across opens with private mode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.log")
		for i := 0; i < 2; i++ {
			logger, closer, err := OpenAuditLog(path)
			if err != nil {
				t.Fatalf("OpenAuditLog: %v", err)
			}
			if err := logger.Log(AuditEntry{Tool: "disk_spin_status", Result: "ok"}); err != nil {
				t.Fatalf("Log: %v", err)
			}
			if err := closer.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n := strings.Count(string(data), "\n"); n != 2 {
			t.Errorf("lines = %d, want 2", n)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("mode = %o, want 600", perm)
		}
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		if _, _, err := OpenAuditLog(filepath.Join(t.TempDir(), "missing", "audit.log")); err == nil {
			t.Fatal("expected error")
		}
	})
}
