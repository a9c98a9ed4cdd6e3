// Package registry holds the last-known spin state of every device between
// poll cycles.
//
// Failure policy: a device whose probe or parse fails in a cycle is reset to
// spin.Unknown for that cycle. The previous classification is never carried
// forward, so the metrics file only reports states observed in the latest
// cycle.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/jamesprial/unraid-spin-exporter/internal/probe"
	"github.com/jamesprial/unraid-spin-exporter/internal/spin"
)

// Outcome is the result of probing and parsing one device. Exactly one of
// State (when Failure is empty) or Failure is meaningful.
type Outcome struct {
	State   spin.State
	Failure probe.Reason
}

// Classified returns a successful outcome.
func Classified(s spin.State) Outcome { return Outcome{State: s} }

// Failed returns a failed outcome for the given reason.
func Failed(reason probe.Reason) Outcome { return Outcome{Failure: reason} }

// Entry is the current view of one device.
type Entry struct {
	Device string     `json:"device"`
	State  spin.State `json:"state"`
	// LastFailure is the failure reason from the latest update, empty on success.
	LastFailure probe.Reason `json:"last_failure,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FailureCount is a cumulative count of probe failures for one device and reason.
type FailureCount struct {
	Device string       `json:"device"`
	Reason probe.Reason `json:"reason"`
	Count  uint64       `json:"count"`
}

// Snapshot is an immutable, consistent copy of the registry. Entries and
// Failures are sorted by device identifier (and reason).
type Snapshot struct {
	Entries  []Entry        `json:"entries"`
	Failures []FailureCount `json:"failures"`
	// CompletedAt is the time the most recent full cycle finished; zero
	// before the first cycle.
	CompletedAt time.Time `json:"completed_at"`
}

type failureKey struct {
	device string
	reason probe.Reason
}

// Registry maps devices to their current spin state. It is safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	failures    map[failureKey]uint64
	completedAt time.Time
	now         func() time.Time
}

// New returns a registry pre-populated with every device in Unknown state.
func New(devices []string) *Registry {
	r := &Registry{
		entries:  make(map[string]*Entry, len(devices)),
		failures: make(map[failureKey]uint64),
		now:      time.Now,
	}
	for _, d := range devices {
		r.entries[d] = &Entry{Device: d, State: spin.Unknown}
	}
	return r
}

// Update records the outcome of the current cycle for device. A device not
// seen before is added. A failed outcome resets the device to Unknown and
// increments its failure counter.
func (r *Registry) Update(device string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[device]
	if !ok {
		e = &Entry{Device: device}
		r.entries[device] = e
	}
	e.UpdatedAt = r.now()
	e.LastFailure = outcome.Failure
	if outcome.Failure != "" {
		e.State = spin.Unknown
		r.failures[failureKey{device: device, reason: outcome.Failure}]++
		return
	}
	e.State = outcome.State
}

// MarkCycleComplete stamps the completion time of a full poll cycle.
func (r *Registry) MarkCycleComplete() {
	r.mu.Lock()
	r.completedAt = r.now()
	r.mu.Unlock()
}

// Get returns the entry for device and whether it is known.
func (r *Registry) Get(device string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[device]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Devices returns the known device identifiers in sorted order.
func (r *Registry) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	devices := make([]string, 0, len(r.entries))
	for d := range r.entries {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices
}

// Snapshot returns a copy of the registry sorted by device identifier.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Entries:     make([]Entry, 0, len(r.entries)),
		Failures:    make([]FailureCount, 0, len(r.failures)),
		CompletedAt: r.completedAt,
	}
	for _, e := range r.entries {
		snap.Entries = append(snap.Entries, *e)
	}
	for k, n := range r.failures {
		snap.Failures = append(snap.Failures, FailureCount{Device: k.device, Reason: k.reason, Count: n})
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Device < snap.Entries[j].Device
	})
	sort.Slice(snap.Failures, func(i, j int) bool {
		if snap.Failures[i].Device != snap.Failures[j].Device {
			return snap.Failures[i].Device < snap.Failures[j].Device
		}
		return snap.Failures[i].Reason < snap.Failures[j].Reason
	})
	return snap
}
