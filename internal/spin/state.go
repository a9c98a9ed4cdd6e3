// Package spin classifies the spin state of a rotational disk from the
// textual report printed by `hdparm -C`.
package spin

import "encoding/json"

// State is the spin classification of a single disk.
type State int

const (
	// Unknown is the zero value and the state of any disk whose probe or
	// parse failed during the most recent cycle.
	Unknown State = iota
	// Spinning means the platters are rotating (active/idle).
	Spinning
	// Idle means the drive is parked in standby or sleep.
	Idle
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Spinning:
		return "spinning"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// Value returns the numeric encoding exported in the disk_status gauge:
// 1 for spinning, 0 otherwise. Idle and unknown are told apart by the
// gauge's state label, not its value.
func (s State) Value() float64 {
	if s == Spinning {
		return 1
	}
	return 0
}

// MarshalJSON encodes the state as its string name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
