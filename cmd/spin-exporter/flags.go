package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/jamesprial/unraid-spin-exporter/internal/config"
)

const defaultConfigPath = "/config/spin-exporter.yaml"

// options holds command-line values. Only flags the user actually set are
// applied on top of the file and environment configuration.
type options struct {
	fs *pflag.FlagSet

	configPath string
	envFile    string
	textfile   string
	hdparm     string
	interval   string
	timeout    time.Duration
	devices    []string
	discovery  string
	debug      bool
	mcpPort    int
	version    bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("spin-exporter", pflag.ContinueOnError)
	fs.SetOutput(output)

	o := &options{fs: fs}
	fs.StringVar(&o.configPath, "config", "", "path to YAML config (default $SPIN_EXPORTER_CONFIG_PATH or "+defaultConfigPath+")")
	fs.StringVar(&o.envFile, "env-file", ".env", "optional dotenv file loaded before environment overrides")
	fs.StringVar(&o.textfile, "textfile", "", "absolute path of the published metrics file")
	fs.StringVar(&o.hdparm, "hdparm", "", "hdparm executable name or path")
	fs.StringVar(&o.interval, "interval", "", "poll interval in seconds or as a duration (e.g. 60, 2m)")
	fs.DurationVar(&o.timeout, "timeout", 0, "per-device probe timeout")
	fs.StringArrayVar(&o.devices, "device", nil, "device to poll; repeatable, implies --discovery=static")
	fs.StringVar(&o.discovery, "discovery", "", "device discovery mode: static, lsblk or emhttp")
	fs.BoolVar(&o.debug, "debug", false, "log at debug level, including raw hdparm output")
	fs.IntVar(&o.mcpPort, "mcp-port", 0, "serve the MCP query API on this port")
	fs.BoolVar(&o.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// resolveConfigPath picks --config, then $SPIN_EXPORTER_CONFIG_PATH, then
// the default location.
func (o *options) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if p := os.Getenv("SPIN_EXPORTER_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// apply overrides cfg with every flag that was set on the command line.
func (o *options) apply(cfg *config.Config) error {
	if o.fs.Changed("textfile") {
		cfg.Textfile = o.textfile
	}
	if o.fs.Changed("hdparm") {
		cfg.Hdparm = o.hdparm
	}
	if o.fs.Changed("interval") {
		d, err := config.ParseInterval(o.interval)
		if err != nil {
			return fmt.Errorf("--interval: %w", err)
		}
		cfg.Interval = d
	}
	if o.fs.Changed("timeout") {
		cfg.ProbeTimeout = o.timeout
	}
	if o.fs.Changed("device") {
		cfg.Devices = append([]string(nil), o.devices...)
		cfg.Discovery = config.DiscoveryStatic
	}
	if o.fs.Changed("discovery") {
		cfg.Discovery = o.discovery
	}
	if o.fs.Changed("debug") {
		cfg.Log.Debug = o.debug
	}
	if o.fs.Changed("mcp-port") {
		cfg.MCP.Enabled = o.mcpPort > 0
		cfg.MCP.Port = o.mcpPort
	}
	return nil
}
