// Package textfile renders registry snapshots in the Prometheus text
// exposition format and publishes them for node_exporter's textfile
// collector.
package textfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/jamesprial/unraid-spin-exporter/internal/registry"
)

const (
	statusMetric   = "disk_status"
	statusHelp     = "Status of the disk (1=active, 0=standby or unknown; the state label tells them apart)"
	failuresMetric = "disk_status_probe_failures_total"
	failuresHelp   = "Number of failed disk status probes by reason"
	lastPollMetric = "disk_status_last_poll_timestamp_seconds"
	lastPollHelp   = "Unix time the most recent poll cycle completed"

	// fileMode lets the textfile collector, usually another user, read the file.
	fileMode = 0o644
)

// Render encodes snap as Prometheus text. The output depends only on snap:
// rendering the same snapshot twice yields identical bytes, with one
// disk_status sample per entry ordered by device.
func Render(snap registry.Snapshot) ([]byte, error) {
	reg := prometheus.NewPedanticRegistry()

	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: statusMetric,
		Help: statusHelp,
	}, []string{"disk", "state"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: failuresMetric,
		Help: failuresHelp,
	}, []string{"disk", "reason"})
	if err := reg.Register(status); err != nil {
		return nil, fmt.Errorf("register %s: %w", statusMetric, err)
	}
	if err := reg.Register(failures); err != nil {
		return nil, fmt.Errorf("register %s: %w", failuresMetric, err)
	}

	// GetMetricWithLabelValues rejects label values that are not valid
	// UTF-8 with an error where WithLabelValues would panic.
	for _, e := range snap.Entries {
		g, err := status.GetMetricWithLabelValues(e.Device, e.State.String())
		if err != nil {
			return nil, fmt.Errorf("%s for device %q: %w", statusMetric, e.Device, err)
		}
		g.Set(e.State.Value())
	}
	for _, f := range snap.Failures {
		c, err := failures.GetMetricWithLabelValues(f.Device, string(f.Reason))
		if err != nil {
			return nil, fmt.Errorf("%s for device %q: %w", failuresMetric, f.Device, err)
		}
		c.Add(float64(f.Count))
	}

	if !snap.CompletedAt.IsZero() {
		lastPoll := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: lastPollMetric,
			Help: lastPollHelp,
		})
		lastPoll.Set(float64(snap.CompletedAt.Unix()))
		if err := reg.Register(lastPoll); err != nil {
			return nil, fmt.Errorf("register %s: %w", lastPollMetric, err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// Writer publishes rendered snapshots to a fixed path.
type Writer struct {
	path string
}

// NewWriter returns a Writer targeting path. The parent directory must
// exist; it is not created.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the target file path.
func (w *Writer) Path() string { return w.path }

// Publish renders snap and atomically replaces the target file. On any
// error the previous file is left untouched and no temp file remains.
func (w *Writer) Publish(snap registry.Snapshot) error {
	data, err := Render(snap)
	if err != nil {
		return fmt.Errorf("render textfile: %w", err)
	}
	return writeAtomic(w.path, data)
}

// writeAtomic writes data to a temp file in the target's directory, syncs
// it, and renames it over path. The temp name does not end in .prom so the
// textfile collector ignores it while it is being written.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp textfile: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp textfile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp textfile: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp textfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp textfile: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming textfile into place: %w", err)
	}
	success = true
	return nil
}
