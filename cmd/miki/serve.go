package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/momentics/miki/control"
	"github.com/momentics/miki/internal/archive"
	"github.com/momentics/miki/server"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	config    string
	listen    string
	opsListen string
	logLevel  string
	logFormat string
}

func serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		Long: `Run the relay until interrupted.

Configuration is read from --config (YAML), then MIKI_* environment
variables, then the flags below. SIGHUP re-reads the file and applies
the new log level.

Examples:
  miki serve
  miki serve --listen 0.0.0.0:2203 --ops-listen 127.0.0.1:9102
  miki serve --config /etc/miki.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(f, cmd.Flags(), bootLogger())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, f.config)
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "", "Path to YAML configuration")
	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Relay listen address (default 127.0.0.1:2203)")
	cmd.Flags().StringVar(&f.opsListen, "ops-listen", "", "Ops HTTP address for /healthz, /readyz, /metrics (disabled when empty)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: console or json")

	return cmd
}

func bootLogger() zerolog.Logger {
	return control.NewLogger(control.LogConfig{Format: "console"}, os.Stderr)
}

// loadServeConfig layers explicitly set flags over the file and environment.
func loadServeConfig(f serveFlags, flags *pflag.FlagSet, logger zerolog.Logger) (*control.Config, error) {
	cfg, err := control.Load(f.config, logger)
	if err != nil {
		return nil, err
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = f.listen
	}
	if flags.Changed("ops-listen") {
		cfg.Ops.ListenAddr = f.opsListen
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func relayConfig(cfg *control.Config) server.Config {
	return server.Config{
		ListenAddr:     cfg.ListenAddr,
		ReadBufferSize: cfg.ReadBufferSize,
		EventCapacity:  cfg.EventCapacity,
		AnnounceToken:  cfg.AnnounceToken,
		CacheCapacity:  cfg.Cache.Capacity,
		CacheLifetime:  cfg.Cache.Lifetime,
		SweepInterval:  cfg.Cache.SweepInterval,
		PinLoop:        cfg.LoopCPU >= 0,
		LoopCPU:        cfg.LoopCPU,
	}
}

func runServe(ctx context.Context, cfg *control.Config, configPath string) error {
	logger := control.NewLogger(cfg.Log, os.Stderr)
	if err := control.ApplyLevel(cfg.Log.Level); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := control.NewMetrics(reg)

	opts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	}

	sink, err := archive.OpenSink(ctx, cfg.Archive.Type, archive.S3Options{
		Bucket: cfg.Archive.S3.Bucket,
		Prefix: cfg.Archive.S3.Prefix,
		Region: cfg.Archive.S3.Region,
	}, logger)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if sink != nil {
		worker := archive.NewWorker(sink,
			archive.WithQueueSize(cfg.Archive.QueueSize),
			archive.WithBatchSize(cfg.Archive.BatchSize),
			archive.WithFlushInterval(cfg.Archive.FlushInterval),
			archive.WithRecorder(metrics),
			archive.WithLogger(logger),
		)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := worker.Close(sctx); err != nil {
				logger.Warn().Err(err).Msg("archive not fully drained")
			}
		}()
		opts = append(opts, server.WithArchiver(worker))
	}

	srv, err := server.New(relayConfig(cfg), opts...)
	if err != nil {
		return err
	}

	if cfg.Ops.ListenAddr != "" {
		probes := control.NewDebugProbes()
		control.RegisterPlatformProbes(probes)
		probes.RegisterProbe("relay", func() any { return srv.Stats() })

		ops := control.NewOpsServer(cfg.Ops.ListenAddr, control.NewOpsRouter(reg, probes, srv.Ready), logger)
		if err := ops.Start(); err != nil {
			return fmt.Errorf("ops listen %s: %w", cfg.Ops.ListenAddr, err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := ops.Shutdown(sctx); err != nil {
				logger.Warn().Err(err).Msg("ops shutdown")
			}
		}()
	}

	if configPath != "" {
		reloader := control.NewReloader(configPath, logger)
		reloader.OnReload(func(c *control.Config) {
			if err := control.ApplyLevel(c.Log.Level); err != nil {
				logger.Warn().Err(err).Msg("ignoring log level")
			}
		})
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go reloader.Watch(ctx, hup)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("relay stopped with error")
		return err
	}
	return nil
}
