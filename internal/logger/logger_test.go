package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func Test_NewWithWriter_Levels(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantDebug bool
		wantInfo  bool
		wantErr   bool
	}{
		{name: "default is info", cfg: Config{}, wantDebug: false, wantInfo: true},
		{name: "debug flag", cfg: Config{Debug: true}, wantDebug: true, wantInfo: true},
		{name: "debug wins over level", cfg: Config{Debug: true, Level: "error"}, wantDebug: true, wantInfo: true},
		{name: "warn level", cfg: Config{Level: "warn"}, wantDebug: false, wantInfo: false},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := NewWithWriter(tt.cfg, &buf)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			log.Debug().Msg("debug-line")
			log.Info().Msg("info-line")

			out := buf.String()
			if got := strings.Contains(out, "debug-line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v\noutput: %s", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "info-line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v\noutput: %s", got, tt.wantInfo, out)
			}
		})
	}
}

func Test_New_UnknownOutput(t *testing.T) {
	if _, err := New(Config{Output: "syslog"}); err == nil {
		t.Fatal("expected error for unknown output")
	}
}

func Test_WithComponent_AddsField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	log := WithComponent(base, "poller")
	log.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "poller" {
		t.Errorf("component = %v, want %q", entry["component"], "poller")
	}
}
