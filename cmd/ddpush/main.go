package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikiz24/ddpush"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := &cli.Command{
		Name:  "ddpush",
		Usage: "Push process metrics to a Datadog series endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML configuration file",
			},
			&cli.StringSliceFlag{
				Name:  "push",
				Usage: "series endpoint, e.g. https://app.datadoghq.com/api/v1/series?api_key=KEY (repeatable)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "add a prefix to the exported metrics",
			},
			&cli.StringFlag{
				Name:  "hostname",
				Usage: "host tag sent with every metric",
			},
			&cli.BoolFlag{
				Name:  "canonical-hostname",
				Usage: "send canonical name for the hostname",
			},
			&cli.DurationFlag{
				Name:  "socket-timeout",
				Usage: "connect and total timeout of each push",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "time between pushes",
			},
			&cli.BoolFlag{
				Name:  "insecure-skip-verify",
				Usage: "skip TLS certificate verification of the endpoint",
			},
			&cli.BoolFlag{
				Name:  "system-metrics",
				Usage: "export process and runtime metrics",
			},
			&cli.StringFlag{
				Name:  "metrics-listen",
				Usage: "address serving the pusher's own Prometheus metrics",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger, err := newLogger(cmd.Bool("debug"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	config := ddpush.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		config, err = ddpush.LoadConfig(path)
		if err != nil {
			return err
		}
	}
	applyFlags(cmd, &config)
	config.Logger = logger

	if len(config.Destinations) == 0 {
		return fmt.Errorf("at least one --push destination is required")
	}

	if err := ddpush.RegisterCounter("pusher.cycles", ddpush.WithResetAfterPush()); err != nil {
		return err
	}
	if err := ddpush.Init(config); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer ddpush.Shutdown()

	// one increment per tick, reset by every push
	if err := ddpush.RegisterCollector(ddpush.NewFuncCollector("heartbeat", logger, func() map[string]int64 {
		ddpush.IncrementCounter("pusher.cycles")
		return nil
	})); err != nil {
		return err
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	logger.Info("shutdown complete")
	return nil
}

// applyFlags overrides file configuration with explicitly set flags.
func applyFlags(cmd *cli.Command, config *ddpush.Config) {
	if cmd.IsSet("push") {
		config.Destinations = cmd.StringSlice("push")
	}
	if cmd.IsSet("prefix") {
		config.Prefix = cmd.String("prefix")
	}
	if cmd.IsSet("hostname") {
		config.Hostname = cmd.String("hostname")
	}
	if cmd.IsSet("canonical-hostname") {
		config.CanonicalHostname = cmd.Bool("canonical-hostname")
	}
	if cmd.IsSet("socket-timeout") {
		config.SocketTimeout = cmd.Duration("socket-timeout")
	}
	if cmd.IsSet("interval") {
		config.Interval = cmd.Duration("interval")
	}
	if cmd.IsSet("insecure-skip-verify") {
		config.InsecureSkipVerify = cmd.Bool("insecure-skip-verify")
	}
	if cmd.IsSet("system-metrics") {
		config.SystemMetrics = cmd.Bool("system-metrics")
	}
	if cmd.IsSet("metrics-listen") {
		config.MetricsListen = cmd.String("metrics-listen")
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
