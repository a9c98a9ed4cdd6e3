// Package poller drives the probe, parse, record and publish cycle at a
// fixed interval.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jamesprial/unraid-spin-exporter/internal/probe"
	"github.com/jamesprial/unraid-spin-exporter/internal/registry"
	"github.com/jamesprial/unraid-spin-exporter/internal/spin"
)

// Publisher receives the full registry snapshot once per completed cycle.
type Publisher interface {
	Publish(snap registry.Snapshot) error
}

// Phase is the scheduler's position in its Idle -> Polling -> Idle loop.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePolling
)

func (p Phase) String() string {
	if p == PhasePolling {
		return "polling"
	}
	return "idle"
}

// CycleResult summarises one poll cycle.
type CycleResult struct {
	Devices  int
	Failures int
	// Abandoned is set when the context was cancelled mid-cycle; nothing
	// was recorded or published.
	Abandoned bool
	// PublishErr is the error from the publisher, if any.
	PublishErr error
	Duration   time.Duration
}

// Config holds the scheduler's dependencies and tuning.
type Config struct {
	Devices     []string
	Interval    time.Duration
	Concurrency int
	Prober      probe.Prober
	Registry    *registry.Registry
	Publisher   Publisher
	Logger      zerolog.Logger
}

// Scheduler runs poll cycles one at a time.
type Scheduler struct {
	devices     []string
	interval    time.Duration
	concurrency int
	prober      probe.Prober
	reg         *registry.Registry
	publisher   Publisher
	log         zerolog.Logger

	phase    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// New validates cfg and returns a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Interval <= 0:
		return nil, errors.New("poll interval must be positive")
	case cfg.Prober == nil:
		return nil, errors.New("prober must not be nil")
	case cfg.Registry == nil:
		return nil, errors.New("registry must not be nil")
	case cfg.Publisher == nil:
		return nil, errors.New("publisher must not be nil")
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		devices:     append([]string(nil), cfg.Devices...),
		interval:    cfg.Interval,
		concurrency: concurrency,
		prober:      cfg.Prober,
		reg:         cfg.Registry,
		publisher:   cfg.Publisher,
		log:         cfg.Logger,
		stop:        make(chan struct{}),
	}, nil
}

// Phase reports whether a cycle is currently running.
func (s *Scheduler) Phase() Phase { return Phase(s.phase.Load()) }

// Stop asks Run to return before the next cycle. A running cycle finishes
// first. Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run executes a cycle immediately and then one per interval until ctx is
// done or Stop is called. Cycles never overlap: ticks that arrive while a
// cycle is running are coalesced.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().
		Int("devices", len(s.devices)).
		Dur("interval", s.interval).
		Msg("poller started")

	for {
		if s.stopped(ctx) {
			s.log.Info().Msg("poller stopped")
			return ctx.Err()
		}
		s.RunCycle(ctx)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("poller stopped")
			return ctx.Err()
		case <-s.stop:
			s.log.Info().Msg("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stop:
		return true
	default:
		return false
	}
}

// RunCycle probes every device, records the outcomes and publishes the
// snapshot. A failure for one device never affects the others. If ctx is
// cancelled before all probes return, the cycle is abandoned without
// touching the registry or the published file.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	s.phase.Store(int32(PhasePolling))
	defer s.phase.Store(int32(PhaseIdle))

	start := time.Now()
	s.log.Debug().Msg("poll cycle starting")

	outcomes := make([]registry.Outcome, len(s.devices))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, device := range s.devices {
		g.Go(func() error {
			outcomes[i] = s.pollDevice(ctx, device)
			return nil
		})
	}
	_ = g.Wait()

	result := CycleResult{Devices: len(s.devices)}
	if ctx.Err() != nil {
		result.Abandoned = true
		result.Duration = time.Since(start)
		s.log.Warn().Err(ctx.Err()).Msg("poll cycle abandoned")
		return result
	}

	for i, device := range s.devices {
		if outcomes[i].Failure != "" {
			result.Failures++
		}
		s.reg.Update(device, outcomes[i])
	}
	s.reg.MarkCycleComplete()

	if err := s.publisher.Publish(s.reg.Snapshot()); err != nil {
		result.PublishErr = err
		s.log.Error().Err(err).Msg("failed to publish textfile, previous file kept")
	}

	result.Duration = time.Since(start)
	s.log.Debug().
		Int("devices", result.Devices).
		Int("failures", result.Failures).
		Dur("took", result.Duration).
		Msg("poll cycle finished")
	return result
}

// pollDevice runs the prober and parser for one device.
func (s *Scheduler) pollDevice(ctx context.Context, device string) registry.Outcome {
	out, err := s.prober.Probe(ctx, device)
	if err != nil {
		reason := probe.ReasonIOError
		var perr *probe.Error
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		s.log.Warn().Str("device", device).Str("reason", string(reason)).Err(err).Msg("probe failed")
		return registry.Failed(reason)
	}

	state, err := spin.Parse(out)
	if err != nil {
		s.log.Warn().Str("device", device).Str("reason", string(probe.ReasonUnparseable)).Err(err).Msg("could not classify hdparm output")
		return registry.Failed(probe.ReasonUnparseable)
	}

	s.log.Debug().Str("device", device).Stringer("state", state).Msg("device classified")
	return registry.Classified(state)
}
