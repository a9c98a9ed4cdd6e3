// Package discovery produces the fixed list of devices polled for the
// lifetime of the process.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jamesprial/unraid-spin-exporter/internal/safety"
)

// Source lists candidate device identifiers.
type Source interface {
	Devices(ctx context.Context) ([]string, error)
}

// Static is a Source backed by a configured list.
type Static []string

// Devices returns the configured list.
func (s Static) Devices(ctx context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// Discover lists devices from src, drops those rejected by filter (nil
// allows everything), removes duplicates and returns them sorted.
func Discover(ctx context.Context, src Source, filter *safety.Filter) ([]string, error) {
	raw, err := src.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover devices: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	devices := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		if filter != nil && !filter.IsAllowed(d) {
			continue
		}
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices, nil
}

// devPath prefixes a bare kernel name with /dev/.
func devPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}
