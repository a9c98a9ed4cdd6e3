// Package main is the entry point for the spin exporter.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jamesprial/unraid-spin-exporter/internal/auth"
	"github.com/jamesprial/unraid-spin-exporter/internal/config"
	"github.com/jamesprial/unraid-spin-exporter/internal/discovery"
	"github.com/jamesprial/unraid-spin-exporter/internal/logger"
	"github.com/jamesprial/unraid-spin-exporter/internal/mcpapi"
	"github.com/jamesprial/unraid-spin-exporter/internal/poller"
	"github.com/jamesprial/unraid-spin-exporter/internal/probe"
	"github.com/jamesprial/unraid-spin-exporter/internal/registry"
	"github.com/jamesprial/unraid-spin-exporter/internal/safety"
	"github.com/jamesprial/unraid-spin-exporter/internal/textfile"
	"github.com/jamesprial/unraid-spin-exporter/internal/tools"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "spin-exporter %s\n", version)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "spin-exporter: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "spin-exporter: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("exiting")
		return 1
	}
	return 0
}

// loadConfig layers configuration: defaults, YAML file, .env, environment,
// then flags. The result is validated.
func loadConfig(opts *options) (*config.Config, error) {
	path := opts.resolveConfigPath()
	cfg, err := config.LoadConfig(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.DefaultConfig()
	case err != nil:
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := opts.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newSource(cfg *config.Config) discovery.Source {
	switch cfg.Discovery {
	case config.DiscoveryLsblk:
		return discovery.NewLsblk(cfg.Lsblk, nil)
	case config.DiscoveryEmhttp:
		return discovery.NewEmhttp(cfg.Paths.Emhttp)
	default:
		return discovery.Static(cfg.Devices)
	}
}

// serve discovers devices once, then runs the poller and the optional MCP
// server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	filter := safety.NewFilter(cfg.Filter.Allowlist, cfg.Filter.Denylist)
	devices, err := discovery.Discover(ctx, newSource(cfg), filter)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		log.Warn().Str("discovery", cfg.Discovery).Msg("no devices to poll; metrics file will only carry the poll timestamp")
	}
	log.Info().
		Str("discovery", cfg.Discovery).
		Strs("devices", devices).
		Str("textfile", cfg.Textfile).
		Msg("starting spin exporter")

	reg := registry.New(devices)
	sched, err := poller.New(poller.Config{
		Devices:     devices,
		Interval:    cfg.Interval,
		Concurrency: cfg.Concurrency,
		Prober:      probe.NewHdparmProber(cfg.Hdparm, cfg.ProbeTimeout, logger.WithComponent(log, "probe")),
		Registry:    reg,
		Publisher:   textfile.NewWriter(cfg.Textfile),
		Logger:      logger.WithComponent(log, "poller"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.MCP.Enabled {
		httpSrv, closeAudit, err := newMCPServer(cfg, reg, sched, logger.WithComponent(log, "mcp"))
		if err != nil {
			return err
		}
		defer closeAudit()

		g.Go(func() error {
			log.Info().Str("addr", httpSrv.Addr).Msg("mcp query server listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sched.Stop()
		return nil
	})

	return g.Wait()
}

// newMCPServer builds the authenticated MCP HTTP server. The returned func
// closes the audit log.
func newMCPServer(cfg *config.Config, reg *registry.Registry, sched *poller.Scheduler, log zerolog.Logger) (*http.Server, func(), error) {
	tokenBefore := cfg.MCP.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		return nil, nil, err
	}
	if tokenBefore == "" {
		log.Warn().Str("token", token).Msg("generated mcp auth token; set SPIN_EXPORTER_MCP_TOKEN to persist it")
	}

	closeAudit := func() {}
	var audit *safety.AuditLogger
	if cfg.Audit.Enabled {
		auditLog, closer, err := safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.Audit.LogPath).Msg("audit logging disabled")
		} else {
			audit = auditLog
			closeAudit = func() { _ = closer.Close() }
		}
	}

	mcpServer := tools.NewServer("spin-exporter", version, mcpapi.SpinTools(reg, sched, audit))
	handler := auth.NewAuthMiddleware(token, log)(server.NewStreamableHTTPServer(mcpServer))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MCP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, closeAudit, nil
}
