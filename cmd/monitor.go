package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorbucket/credmon/config"
	"github.com/mirrorbucket/credmon/db"
	"github.com/mirrorbucket/credmon/pkg/clierr"
	"github.com/mirrorbucket/credmon/proxyctl"
	"github.com/mirrorbucket/credmon/scheduler"
	"github.com/mirrorbucket/credmon/statusd"
	"github.com/mirrorbucket/credmon/supervisor"
	"github.com/mirrorbucket/credmon/watcher"
)

// monitorCmd creates the command running the long-lived monitor daemon.
func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the credential monitor daemon",
		Long: "Watch AWS credential files and SSO token expiry, and restart the proxy " +
			"process whenever it needs to pick up fresh credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context())
		},
	}
}

func runMonitor(parent context.Context) error {
	cfg := config.Load()
	applyLogLevel(cfg.LogLevel)

	// The state directory is the only fatal configuration concern: the
	// daemon cannot account for its renewals without it.
	if err := db.InitDB(cfg.StateDir); err != nil {
		return clierr.New(clierr.Config, "state directory is unusable: "+cfg.StateDir, err)
	}
	defer db.CloseDB()

	repo := db.NewRenewalRepository(db.Db)
	if err := repo.Prune(parent); err != nil {
		log.Warn().Err(err).Msg("Failed to prune renewal history")
	}

	reloader, err := proxyctl.NewCommandReloader(cfg.ReloadCmd)
	if err != nil {
		return clierr.New(clierr.Config, "invalid reload command", err)
	}

	sup := supervisor.New(reloader, repo, cfg.Cooldown, cfg.ReloadTimeout)
	sup.Start()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	w, err := watcher.New(watcher.Options{
		CredentialsFile: cfg.CredentialsFile,
		ConfigFile:      cfg.ConfigFile,
		SSOCacheDir:     cfg.SSOCacheDir,
		Window:          cfg.Debounce,
		ScanOnStart:     cfg.ScanOnStart,
	}, sup)
	if err != nil {
		// Degraded mode: the periodic check below is the sole detection
		// path until the next restart.
		log.Warn().Err(err).Msg("Filesystem watching unavailable, relying on periodic checks only")
	} else {
		g.Go(func() error { return w.Run(ctx.Done()) })
	}

	sched := scheduler.New(cfg.SSOCacheDir, cfg.CheckInterval, cfg.Threshold, sup)
	g.Go(func() error { return sched.Run(ctx) })

	if cfg.HealthURL != "" {
		prober := proxyctl.NewHealthProber(cfg.HealthURL, cfg.HealthInterval, cfg.HealthFails, sup)
		g.Go(func() error { return prober.Run(ctx) })
	}

	status := statusd.New(cfg.StatusAddr, cfg.Profile, cfg.SSOCacheDir, cfg.Threshold, sup)
	g.Go(func() error {
		if err := status.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("Status server unavailable")
		}
		return nil
	})

	log.Info().Str("profile", cfg.Profile).Str("aws_dir", cfg.AWSDir).Msg("Credential monitor started")

	err = g.Wait()

	// An in-flight reload finishes before Close returns, bounded by the
	// reload timeout.
	sup.Close()
	log.Info().Msg("Credential monitor stopped")
	return err
}

// applyLogLevel sets the global zerolog level. DEBUG_CREDMON wins over
// LOG_LEVEL for parity with local debugging habits.
func applyLogLevel(level string) {
	if os.Getenv("DEBUG_CREDMON") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
