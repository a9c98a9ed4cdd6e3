package discovery

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time interface check.
var _ Source = (*Emhttp)(nil)

// Emhttp lists the devices assigned to array and pool slots on an Unraid
// server, as recorded in {emhttpPath}/disks.ini.
type Emhttp struct {
	emhttpPath string
}

// NewEmhttp returns a Source reading disks.ini under emhttpPath (normally
// /var/local/emhttp).
func NewEmhttp(emhttpPath string) *Emhttp {
	return &Emhttp{emhttpPath: emhttpPath}
}

// Devices returns the /dev path of every slot holding a rotational disk.
// Unassigned slots (device=""), the boot flash and slots marked
// rotational="0" are skipped. Slots without a rotational key are kept.
func (e *Emhttp) Devices(ctx context.Context) ([]string, error) {
	path := filepath.Join(e.emhttpPath, "disks.ini")
	sections, err := parseSectionedIni(path)
	if err != nil {
		return nil, fmt.Errorf("read disks.ini: %w", err)
	}

	var devices []string
	for _, s := range sections {
		dev := stripQuotes(s.kv["device"])
		if dev == "" || !spinsUp(s) {
			continue
		}
		devices = append(devices, devPath(dev))
	}
	return devices, nil
}

func spinsUp(s iniSection) bool {
	if strings.EqualFold(stripQuotes(s.kv["type"]), "flash") || s.name == "flash" {
		return false
	}
	return stripQuotes(s.kv["rotational"]) != "0"
}

// iniSection holds the name of a section and its key-value pairs.
type iniSection struct {
	name string
	kv   map[string]string
}

// parseSectionedIni reads a [section]-style ini file (like disks.ini) and
// returns sections in the order they appear in the file.
func parseSectionedIni(path string) ([]iniSection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var sections []iniSection
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, iniSection{
				name: stripQuotes(line[1 : len(line)-1]),
				kv:   make(map[string]string),
			})
			continue
		}
		if len(sections) == 0 {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		sections[len(sections)-1].kv[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return sections, scanner.Err()
}

// stripQuotes removes surrounding double-quotes from a raw ini value.
func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
