package spin

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrParse is wrapped by every error returned from Parse.
var ErrParse = errors.New("unrecognized hdparm output")

// stateMarker precedes the drive state in hdparm -C output:
//
//	/dev/sda:
//	 drive state is:  active/idle
const stateMarker = "drive state is:"

// Parse extracts the spin state from the output of `hdparm -C <device>`.
// Surrounding whitespace, blank lines and unrelated lines are ignored. Output
// without a recognizable drive state line yields an error wrapping ErrParse.
func Parse(output string) (State, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		idx := strings.Index(line, stateMarker)
		if idx < 0 {
			continue
		}
		return classify(strings.TrimSpace(line[idx+len(stateMarker):]))
	}
	if err := scanner.Err(); err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return Unknown, fmt.Errorf("%w: no %q line", ErrParse, stateMarker)
}

// classify maps a drive state token to a State. hdparm reports
// "active/idle", "idle_a", "idle_b", "idle_c", "standby", "sleeping" or
// "unknown".
func classify(value string) (State, error) {
	switch {
	case value == "":
		return Unknown, fmt.Errorf("%w: empty drive state", ErrParse)
	case strings.HasPrefix(value, "standby"), strings.HasPrefix(value, "sleeping"):
		return Idle, nil
	case strings.HasPrefix(value, "active"), strings.HasPrefix(value, "idle"):
		return Spinning, nil
	default:
		return Unknown, fmt.Errorf("%w: drive state %q", ErrParse, value)
	}
}
