// Package probe runs the external disk query utility (hdparm) for a single
// device and reports its raw output or a classified failure.
package probe

import (
	"context"
	"fmt"
)

// Reason classifies why a probe did not produce usable output.
type Reason string

const (
	// ReasonUtilityNotFound means the executable could not be located or started.
	ReasonUtilityNotFound Reason = "utility_not_found"
	// ReasonNonZeroExit means the utility ran but exited with a non-zero code.
	ReasonNonZeroExit Reason = "non_zero_exit"
	// ReasonTimeout means the utility did not finish within the probe timeout.
	ReasonTimeout Reason = "timeout"
	// ReasonIOError covers every other failure to run the utility or read its output.
	ReasonIOError Reason = "io_error"
	// ReasonUnparseable is used by callers when the output could not be
	// classified. The prober itself never returns it.
	ReasonUnparseable Reason = "unparseable_output"
)

// Error describes a failed probe of one device.
type Error struct {
	Device   string
	Reason   Reason
	ExitCode int // only meaningful for ReasonNonZeroExit
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonNonZeroExit:
		return fmt.Sprintf("probe %s: %s (exit code %d): %v", e.Device, e.Reason, e.ExitCode, e.Err)
	default:
		return fmt.Sprintf("probe %s: %s: %v", e.Device, e.Reason, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Prober queries the spin status report of a single device.
type Prober interface {
	// Probe returns the utility's standard output for device. On failure the
	// returned error is an *Error.
	Probe(ctx context.Context, device string) (string, error)
}
