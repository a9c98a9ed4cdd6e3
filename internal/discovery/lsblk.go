package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Source = (*Lsblk)(nil)

// lsblkTimeout bounds the single lsblk call made at startup.
const lsblkTimeout = 30 * time.Second

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the Runner backed by os/exec.
type ExecRunner struct{}

// Run executes name with args and returns stdout. A non-zero exit is an
// error carrying the trimmed stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Lsblk lists rotational SCSI disks via `lsblk --json`.
type Lsblk struct {
	path   string
	runner Runner
}

// NewLsblk returns a Source running the lsblk executable at path through
// runner. A nil runner uses ExecRunner.
func NewLsblk(path string, runner Runner) *Lsblk {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Lsblk{path: path, runner: runner}
}

// Devices runs lsblk and returns /dev paths of rotational disks.
func (l *Lsblk) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, lsblkTimeout)
	defer cancel()

	out, err := l.runner.Run(ctx, l.path, "--nodeps", "--scsi", "-o", "NAME,TYPE,ROTA", "--json")
	if err != nil {
		return nil, err
	}
	return ParseLsblk(out)
}

type lsblkDevice struct {
	Name string    `json:"name"`
	Type string    `json:"type"`
	Rota flexiBool `json:"rota"`
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

// flexiBool accepts both JSON booleans and the "0"/"1" strings printed by
// older util-linux releases.
type flexiBool bool

func (b *flexiBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// ParseLsblk decodes `lsblk --json -o NAME,TYPE,ROTA` output and keeps
// devices of type "disk" that are rotational.
func ParseLsblk(data []byte) ([]string, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode lsblk output: %w", err)
	}

	var devices []string
	for _, d := range parsed.BlockDevices {
		if d.Type != "disk" || !bool(d.Rota) || d.Name == "" {
			continue
		}
		devices = append(devices, devPath(d.Name))
	}
	return devices, nil
}
