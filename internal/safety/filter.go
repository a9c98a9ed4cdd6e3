// Package safety provides device filtering and audit logging for the
// spin exporter.
package safety

import "path/filepath"

// Filter selects devices using an allowlist and a denylist of glob patterns
// (as understood by filepath.Match). A pattern matches a device when it
// matches either the full identifier ("/dev/sda") or its base name ("sda").
//
// Rules:
//   - If both lists are empty (or nil), every device is allowed.
//   - Denylist always takes priority over the allowlist.
//   - If a non-empty allowlist is present, a device must match at least one
//     allowlist pattern to be permitted (after the denylist check).
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter constructs a Filter from the provided allowlist and denylist
// pattern slices. Either or both may be nil or empty.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: allowlist,
		denylist:  denylist,
	}
}

// IsAllowed reports whether device is permitted by this filter.
func (f *Filter) IsAllowed(device string) bool {
	for _, pattern := range f.denylist {
		if matchDevice(pattern, device) {
			return false
		}
	}

	if len(f.allowlist) == 0 {
		return true
	}

	for _, pattern := range f.allowlist {
		if matchDevice(pattern, device) {
			return true
		}
	}

	return false
}

// matchDevice reports whether pattern matches device or its base name.
// Malformed patterns never match.
func matchDevice(pattern, device string) bool {
	if matched, err := filepath.Match(pattern, device); err == nil && matched {
		return true
	}
	matched, err := filepath.Match(pattern, filepath.Base(device))
	return err == nil && matched
}
