package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bot"
	"github.com/jensholdgaard/player-auction/internal/catalog"
	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/health"
	"github.com/jensholdgaard/player-auction/internal/leader"
	"github.com/jensholdgaard/player-auction/internal/store"
	"github.com/jensholdgaard/player-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/player-auction/internal/store/entstore"
	_ "github.com/jensholdgaard/player-auction/internal/store/memory"
	_ "github.com/jensholdgaard/player-auction/internal/store/postgres"
)

var version = "dev"

// snapshotBacklogLimit is how many unsaved room snapshots readiness tolerates.
const snapshotBacklogLimit = 50

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	cat, err := catalog.Load(cfg.Auction.CatalogPath)
	if err != nil {
		return fmt.Errorf("loading player catalog: %w", err)
	}
	logger.InfoContext(ctx, "player catalog loaded",
		slog.String("path", cfg.Auction.CatalogPath),
		slog.Int("players", cat.Len()),
	)

	// Open store using the configured driver (sqlx, ent or memory).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	discordBot, err := bot.New(cfg.Discord, logger, tp.TracerProvider)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	notifier, err := bot.NewNotifier(discordBot.Session(), cfg.Discord.NotifyWorkers, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	mgr := auction.NewManager(cat, auction.RulesFromConfig(cfg.Auction), cfg.Auction.InactivityTimeout,
		repos.Snapshots, repos.Events, notifier,
		logger, tp.TracerProvider, tp.MeterProvider, clk,
	)

	checkers := []health.Checker{
		health.Ping("database", repos.Ping),
		health.Backlog("snapshots", mgr.PendingSnapshots, snapshotBacklogLimit),
	}
	var elector *leader.Elector
	if cfg.LeaderElection.Enabled {
		elector = leader.New(cfg.LeaderElection, logger)
		checkers = append(checkers, health.Checker{Name: "leader", Check: elector.Check})
	}
	healthHandler := health.NewHandler(clk, checkers...)

	// Health endpoints run on every replica.
	mux := http.NewServeMux()
	healthHandler.Register(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// serve is the work only the leader runs. It returns once ctx is done.
	serve := func(ctx context.Context) error {
		// Restore rooms so they survive restarts and leader failover.
		n, recoverErr := mgr.Recover(ctx)
		if recoverErr != nil {
			return fmt.Errorf("recovering rooms: %w", recoverErr)
		}
		if n > 0 {
			logger.InfoContext(ctx, "recovered rooms", slog.Int("count", n))
		}

		if startErr := discordBot.Start(ctx, mgr); startErr != nil {
			return fmt.Errorf("starting bot: %w", startErr)
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctionbot is running", slog.String("version", version))

		sweep(ctx, mgr, cfg.Auction.SweepInterval, clk, logger)

		healthHandler.SetReady(false)
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if shutdownErr := mgr.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("room shutdown error", slog.Any("error", shutdownErr))
		}
		return nil
	}

	if elector != nil {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...",
			slog.String("identity", elector.Identity()),
		)

		if leaderErr := elector.Run(ctx, func(ctx context.Context) {
			if serveErr := serve(ctx); serveErr != nil {
				logger.ErrorContext(ctx, "leader work failed", slog.Any("error", serveErr))
				cancel()
			}
		}, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else if err := serve(ctx); err != nil {
		return err
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

// sweep expires inactive rooms every interval until ctx is done.
func sweep(ctx context.Context, mgr *auction.Manager, interval time.Duration, clk clock.Clock, logger *slog.Logger) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := mgr.SweepInactiveRooms(ctx, clk.Now())
			if err != nil {
				logger.WarnContext(ctx, "room sweep failed", slog.Any("error", err))
			}
			if len(expired) > 0 {
				logger.InfoContext(ctx, "expired inactive rooms", slog.Any("rooms", expired))
			}
		}
	}
}
