package probe

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Compile-time interface check.
var _ Prober = (*HdparmProber)(nil)

// waitDelay bounds how long Wait blocks on output pipes after the process
// has been killed, e.g. when a child of the utility keeps them open.
const waitDelay = 2 * time.Second

// HdparmProber implements Prober by running `<path> -C <device>`.
type HdparmProber struct {
	path    string
	timeout time.Duration
	log     zerolog.Logger
}

// NewHdparmProber returns a prober that runs the executable at path (or
// looked up in PATH when path has no separator) with the given per-device
// timeout. A non-positive timeout panics; every probe must be bounded.
func NewHdparmProber(path string, timeout time.Duration, log zerolog.Logger) *HdparmProber {
	if timeout <= 0 {
		panic("probe timeout must be positive")
	}
	return &HdparmProber{path: path, timeout: timeout, log: log}
}

// Probe runs hdparm -C for device and returns its standard output.
func (p *HdparmProber) Probe(ctx context.Context, device string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.path, "-C", device)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	p.log.Debug().
		Str("device", device).
		Dur("took", time.Since(start)).
		Str("stdout", stdout.String()).
		Str("stderr", stderr.String()).
		Err(err).
		Msg("hdparm finished")

	if err != nil {
		return "", classify(ctx, device, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// classify turns an exec error into an *Error. The context deadline is
// checked first: a killed process also surfaces as an *exec.ExitError.
func classify(ctx context.Context, device string, err error, stderr string) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Device: device, Reason: ReasonTimeout, Stderr: stderr, Err: ctx.Err()}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &Error{Device: device, Reason: ReasonUtilityNotFound, Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{
			Device:   device,
			Reason:   ReasonNonZeroExit,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr,
			Err:      err,
		}
	}
	return &Error{Device: device, Reason: ReasonIOError, Stderr: stderr, Err: err}
}
