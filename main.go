package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/emacs-straight/gnu-elpa-mirror/hosting"
	"github.com/emacs-straight/gnu-elpa-mirror/mirror"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GEM_CONFIG"),
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:  "cron",
			Usage: "Cron schedule for repeated runs, empty runs once and exits.",
		},
		&cli.StringFlag{
			Name:  "listen-address",
			Value: ":9090",
			Usage: "Metrics listen address, used in cron mode only.",
		},
		&cli.BoolFlag{
			Name:  "skip-gnu-elpa",
			Usage: "Skip mirroring the GNU ELPA archive.",
		},
		&cli.BoolFlag{
			Name:  "skip-emacsmirror",
			Usage: "Skip mirroring the Emacsmirror index.",
		},
		&cli.BoolFlag{
			Name:  "skip-mirror-index",
			Usage: "Skip updating the mirror list repository.",
		},
		&cli.BoolFlag{
			Name:  "skip-mirror-pulls",
			Usage: "Skip pulling mirror repositories that are already on disk.",
		},
		&cli.BoolFlag{
			Name:  "skip-mirror-pushes",
			Usage: "Skip pushing mirrored packages.",
		},
		&cli.BoolFlag{
			Name:  "skip-orgmode",
			Usage: "Skip mirroring org-mode from Savannah.",
		},
		&cli.StringFlag{
			Name:  "mirror-only-one",
			Usage: "Restrict package mirroring to the named package.",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct{ log *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "err", err)...)
}

func main() {
	cmd := &cli.Command{
		Name:  "gnu-elpa-mirror",
		Usage: "gnu-elpa-mirror mirrors GNU ELPA, the Emacsmirror index and org-mode to a hosting org.",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {

			// set log level according to argument
			if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
				loggerLevel.Set(v)
			}

			conf, err := parseConfigFile(c.String("config"))
			if err != nil {
				logger.Error("unable to parse config file", "err", err)
				os.Exit(1)
			}
			conf = applyDefaults(conf)

			conf.Token, err = resolveToken(ctx)
			if err != nil {
				logger.Error("unable to resolve access token", "err", err)
				os.Exit(1)
			}

			opts := mirror.RunOptions{
				SkipELPA:        c.Bool("skip-gnu-elpa"),
				SkipEmacsmirror: c.Bool("skip-emacsmirror"),
				SkipOrgMode:     c.Bool("skip-orgmode"),
				SkipIndex:       c.Bool("skip-mirror-index"),
				SkipPulls:       c.Bool("skip-mirror-pulls"),
				SkipPushes:      c.Bool("skip-mirror-pushes"),
				OnlyPackage:     c.String("mirror-only-one"),
			}

			mirror.EnableMetrics("gem", prometheus.DefaultRegisterer)

			host := hosting.NewGitHub(ctx, conf.Org, conf.Token, logger.With("logger", "hosting"))
			m, err := mirror.New(*conf, host, logger.With("logger", "mirror"))
			if err != nil {
				logger.Error("unable to create mirror", "err", err)
				os.Exit(1)
			}

			webhookURL := os.Getenv("WEBHOOK_URL")
			runOnce := func(ctx context.Context) error {
				if err := m.Run(ctx, opts); err != nil {
					return err
				}
				if webhookURL != "" {
					notifyWebhook(ctx, logger, webhookURL)
				}
				return nil
			}

			schedule := c.String("cron")
			if schedule == "" {
				return runOnce(ctx)
			}

			// metrics endpoint for the long-running mode
			go func() {
				http.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(c.String("listen-address"), nil); err != nil {
					logger.Error("metrics server stopped", "err", err)
				}
			}()

			cl := cronLogger{log: logger.With("logger", "cron")}
			runner := cron.New(cron.WithLogger(cl), cron.WithChain(
				cron.SkipIfStillRunning(cl),
			))
			if _, err := runner.AddFunc(schedule, func() {
				if err := runOnce(ctx); err != nil {
					logger.Error("mirror run failed", "err", err)
				}
			}); err != nil {
				logger.Error("invalid cron schedule", "schedule", schedule, "err", err)
				os.Exit(1)
			}
			runner.Start()

			// listen for shutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			logger.Info("Shutting down")
			<-runner.Stop().Done()

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}
