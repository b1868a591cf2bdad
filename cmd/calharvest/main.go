package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"calharvest/internal/browser"
	"calharvest/internal/config"
	"calharvest/internal/harvest"
	"calharvest/internal/history"
	appLog "calharvest/internal/log"
	"calharvest/internal/web"
)

func main() {
	cmd := &cli.Command{
		Name:  "calharvest",
		Usage: "Harvest a paginated calendar view and republish it as a validated iCalendar artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config/config.yaml",
				Sources: cli.EnvVars("CALHARVEST_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "harvest",
				Usage:  "Run one harvest-validate-publish cycle and exit",
				Action: runHarvest,
			},
			{
				Name:   "serve",
				Usage:  "Serve published artifacts over HTTP and re-harvest on a cron schedule",
				Action: runServe,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		appLog.Error("run failed", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Info("effective config",
		"source_url", cfg.SourceURL,
		"window_start", cfg.WindowStart,
		"window_days", cfg.WindowDays,
		"timezone", cfg.Timezone,
		"min_events", cfg.MinEvents,
		"ics_path", cfg.ICSPath,
		"protect_last_good", cfg.ProtectLastGood,
	)
	return cfg, nil
}

func openHistory(cfg *config.Config) history.Store {
	if cfg.HistoryPath == "" {
		return nil
	}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		// Run history is a convenience; a broken database must not block
		// harvesting.
		appLog.Error("run history unavailable", err, "path", cfg.HistoryPath)
		return nil
	}
	return store
}

func runHarvest(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	res, err := harvestOnce(ctx, cfg, store)
	if err != nil {
		switch {
		case errors.Is(err, harvest.ErrSanity):
			return cli.Exit(fmt.Sprintf("sanity check failed: %s", res.Reason), 1)
		default:
			if res.Status == history.StatusValidationFailed {
				return cli.Exit(fmt.Sprintf("validation failed (rolled back: %t): %s", res.RolledBack, res.Reason), 1)
			}
			return err
		}
	}

	appLog.Info("published", "events", len(res.Events))
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store := openHistory(cfg)
	if store != nil {
		defer store.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return web.NewServer(cfg, store).Serve(gctx)
	})

	g.Go(func() error {
		sched := cron.New()
		refresh := func() {
			if _, err := harvestOnce(gctx, cfg, store); err != nil {
				appLog.Error("scheduled harvest failed", err)
			}
		}
		if _, err := sched.AddFunc(cfg.RefreshCron, refresh); err != nil {
			return fmt.Errorf("bad refresh cron %q: %w", cfg.RefreshCron, err)
		}

		// Prime the artifacts once at startup rather than waiting for the
		// first cron tick.
		refresh()

		sched.Start()
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})

	return g.Wait()
}

// harvestOnce wires a fresh capture log and browser session into one
// pipeline run.
func harvestOnce(ctx context.Context, cfg *config.Config, store history.Store) (harvest.Result, error) {
	captures := harvest.NewCaptureLog()

	session, err := browser.NewSession(ctx, captures, cfg.CaptureAllowList)
	if err != nil {
		return harvest.Result{}, err
	}
	defer session.Close()

	return harvest.Run(ctx, cfg, session, captures, store)
}
