package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jamesprial/unraid-spin-exporter/internal/safety"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockRunner implements Runner for lsblk tests.
type mockRunner struct {
	runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
}

var _ Runner = (*mockRunner)(nil)

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return m.runFunc(ctx, name, args...)
}

// errSource implements Source and always fails.
type errSource struct{ err error }

func (s errSource) Devices(ctx context.Context) ([]string, error) { return nil, s.err }

const lsblkJSON = `
{
   "blockdevices": [
      {"name": "sda", "type": "disk", "rota": true},
      {"name": "sdb", "type": "disk", "rota": false},
      {"name": "sr0", "type": "rom", "rota": true},
      {"name": "sdc", "type": "disk", "rota": "1"}
   ]
}
`

// ---------------------------------------------------------------------------
// Discover
// ---------------------------------------------------------------------------

func Test_Discover_Cases(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		filter  *safety.Filter
		want    []string
		wantErr bool
	}{
		{
			name: "sorts and dedupes",
			src:  Static{"/dev/sdc", "/dev/sda", "/dev/sdc", " ", "/dev/sdb"},
			want: []string{"/dev/sda", "/dev/sdb", "/dev/sdc"},
		},
		{
			name:   "filter removes denied devices",
			src:    Static{"/dev/sda", "/dev/sdb", "/dev/sdc"},
			filter: safety.NewFilter(nil, []string{"sdb"}),
			want:   []string{"/dev/sda", "/dev/sdc"},
		},
		{
			name: "empty source",
			src:  Static{},
			want: []string{},
		},
		{
			name:    "source error propagates",
			src:     errSource{err: errors.New("boom")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(context.Background(), tt.src, tt.filter)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Discover() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_Static_ReturnsCopy(t *testing.T) {
	s := Static{"/dev/sda"}
	got, _ := s.Devices(context.Background())
	got[0] = "/dev/mutated"
	if s[0] != "/dev/sda" {
		t.Errorf("Static list mutated through returned slice: %v", s)
	}
}

// ---------------------------------------------------------------------------
// lsblk
// ---------------------------------------------------------------------------

func Test_ParseLsblk_Cases(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "keeps rotational disks only",
			input: lsblkJSON,
			want:  []string{"/dev/sda", "/dev/sdc"},
		},
		{
			name:  "no block devices",
			input: `{"blockdevices": []}`,
			want:  nil,
		},
		{
			name:    "invalid json",
			input:   `{"blockdevices": [`,
			wantErr: true,
		},
		{
			name:    "invalid rota value",
			input:   `{"blockdevices": [{"name": "sda", "type": "disk", "rota": "maybe"}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLsblk([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLsblk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_Lsblk_Devices_PassesArguments(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := &mockRunner{runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(lsblkJSON), nil
	}}

	devices, err := NewLsblk("/usr/bin/lsblk", runner).Devices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "/usr/bin/lsblk" {
		t.Errorf("ran %q, want /usr/bin/lsblk", gotName)
	}
	if strings.Join(gotArgs, " ") != "--nodeps --scsi -o NAME,TYPE,ROTA --json" {
		t.Errorf("args = %v", gotArgs)
	}
	if !reflect.DeepEqual(devices, []string{"/dev/sda", "/dev/sdc"}) {
		t.Errorf("devices = %v", devices)
	}
}

func Test_Lsblk_Devices_RunnerError(t *testing.T) {
	runner := &mockRunner{runFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}}
	if _, err := NewLsblk("lsblk", runner).Devices(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// emhttp disks.ini
// ---------------------------------------------------------------------------

func Test_Emhttp_Devices(t *testing.T) {
	dir := t.TempDir()
	ini := `["parity"]
name="parity"
device="sdb"
type="Parity"
rotational="1"
status="DISK_OK"
["disk1"]
name="disk1"
device="sdc"
type="Data"
rotational="1"
["disk2"]
name="disk2"
device=""
status="DISK_NP"
["disk3"]
name="disk3"
device="sdf"
["cache"]
name="cache"
device="nvme0n1"
type="Cache"
rotational="0"
["flash"]
name="flash"
device="sda"
type="Flash"
`
	if err := os.WriteFile(filepath.Join(dir, "disks.ini"), []byte(ini), 0o644); err != nil {
		t.Fatalf("write disks.ini: %v", err)
	}

	got, err := NewEmhttp(dir).Devices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// disk3 has no rotational key and is kept; cache (SSD) and flash are not.
	want := []string{"/dev/sdb", "/dev/sdc", "/dev/sdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Devices() = %v, want %v", got, want)
	}
}

func Test_Emhttp_MissingFile(t *testing.T) {
	if _, err := NewEmhttp(t.TempDir()).Devices(context.Background()); err == nil {
		t.Fatal("expected error for missing disks.ini")
	}
}
