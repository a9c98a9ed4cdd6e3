// Package config provides configuration loading, defaults and validation for
// the spin exporter.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jamesprial/unraid-spin-exporter/internal/logger"
)

// Discovery modes.
const (
	DiscoveryStatic = "static"
	DiscoveryLsblk  = "lsblk"
	DiscoveryEmhttp = "emhttp"
)

// FilterConfig holds allowlist and denylist glob patterns for devices.
type FilterConfig struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// PathsConfig holds filesystem paths used for device discovery.
type PathsConfig struct {
	Emhttp string `yaml:"emhttp"`
}

// MCPConfig controls the optional MCP query server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// AuditConfig controls audit logging of MCP queries.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// Config is the top-level configuration structure.
type Config struct {
	// Textfile is where the metrics file is published.
	Textfile string `yaml:"textfile"`
	// Hdparm is the path to hdparm, or a name looked up in PATH.
	Hdparm string `yaml:"hdparm"`
	// Lsblk is the path to lsblk, used by the lsblk discovery mode.
	Lsblk        string        `yaml:"lsblk"`
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// Concurrency is the number of devices probed in parallel.
	Concurrency int           `yaml:"concurrency"`
	Discovery   string        `yaml:"discovery"`
	Devices     []string      `yaml:"devices"`
	Filter      FilterConfig  `yaml:"filter"`
	Paths       PathsConfig   `yaml:"paths"`
	Log         logger.Config `yaml:"log"`
	MCP         MCPConfig     `yaml:"mcp"`
	Audit       AuditConfig   `yaml:"audit"`
}

// UnmarshalYAML decodes c in place. interval and probe_timeout accept the
// same forms as ParseInterval, so "interval: 60" means sixty seconds.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if key.Value != "interval" && key.Value != "probe_timeout" {
				continue
			}
			if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
				continue
			}
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s must be a scalar", val.Line, key.Value)
			}
			d, err := ParseInterval(val.Value)
			if err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key.Value, err)
			}
			val.Tag = "!!str"
			val.Style = 0
			val.Value = d.String()
		}
	}
	type plain Config
	return node.Decode((*plain)(c))
}

// LoadConfig reads a YAML configuration file from path. Keys absent from the
// file keep their DefaultConfig values. On error, nil is returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Textfile:     "/var/lib/node_exporter/textfile/disk_status.prom",
		Hdparm:       "hdparm",
		Lsblk:        "lsblk",
		Interval:     60 * time.Second,
		ProbeTimeout: 10 * time.Second,
		Concurrency:  4,
		Discovery:    DiscoveryLsblk,
		Paths: PathsConfig{
			Emhttp: "/var/local/emhttp",
		},
		MCP: MCPConfig{
			Port: 8080,
		},
		Audit: AuditConfig{
			LogPath: "/config/audit.log",
		},
	}
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - SPIN_EXPORTER_TEXTFILE overrides cfg.Textfile
//   - SPIN_EXPORTER_HDPARM overrides cfg.Hdparm
//   - SPIN_EXPORTER_INTERVAL overrides cfg.Interval (seconds or a Go duration)
//   - SPIN_EXPORTER_DEBUG overrides cfg.Log.Debug
//   - SPIN_EXPORTER_MCP_TOKEN overrides cfg.MCP.AuthToken
//
// An unparseable value is an error and leaves the field unchanged.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SPIN_EXPORTER_TEXTFILE"); v != "" {
		cfg.Textfile = v
	}
	if v := os.Getenv("SPIN_EXPORTER_HDPARM"); v != "" {
		cfg.Hdparm = v
	}
	if v := os.Getenv("SPIN_EXPORTER_INTERVAL"); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("SPIN_EXPORTER_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("SPIN_EXPORTER_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPIN_EXPORTER_DEBUG: %w", err)
		}
		cfg.Log.Debug = b
	}
	if v := os.Getenv("SPIN_EXPORTER_MCP_TOKEN"); v != "" {
		cfg.MCP.AuthToken = v
	}
	return nil
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ParseInterval parses a bare number of seconds ("60") or a Go duration
// string ("1m30s").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs > maxSeconds || secs < -maxSeconds {
			return 0, fmt.Errorf("interval %q out of range", s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// Validate reports the first configuration problem found in cfg.
func (c *Config) Validate() error {
	switch {
	case c.Textfile == "":
		return errors.New("textfile path must be set")
	case !filepath.IsAbs(c.Textfile):
		return fmt.Errorf("textfile path %q must be absolute", c.Textfile)
	case strings.HasSuffix(c.Textfile, string(filepath.Separator)):
		return fmt.Errorf("textfile path %q names a directory", c.Textfile)
	case c.Hdparm == "":
		return errors.New("hdparm path must be set")
	case c.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	case c.ProbeTimeout <= 0:
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	switch c.Discovery {
	case DiscoveryStatic:
		if len(c.Devices) == 0 {
			return errors.New("static discovery requires at least one device")
		}
	case DiscoveryLsblk:
		if c.Lsblk == "" {
			return errors.New("lsblk path must be set for lsblk discovery")
		}
	case DiscoveryEmhttp:
		if c.Paths.Emhttp == "" {
			return errors.New("paths.emhttp must be set for emhttp discovery")
		}
	default:
		return fmt.Errorf("unknown discovery mode %q (valid: static, lsblk, emhttp)", c.Discovery)
	}

	if c.MCP.Enabled && (c.MCP.Port < 1 || c.MCP.Port > 65535) {
		return fmt.Errorf("mcp.port %d out of range", c.MCP.Port)
	}
	return nil
}

// EnsureAuthToken generates a random MCP auth token and sets it on cfg if
// cfg.MCP.AuthToken is empty. It returns the token (existing or generated).
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.MCP.AuthToken != "" {
		return cfg.MCP.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.MCP.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
