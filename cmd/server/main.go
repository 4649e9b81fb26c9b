package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/heistnight/internal/catalog"
	"github.com/mcdev12/heistnight/internal/config"
	"github.com/mcdev12/heistnight/internal/events"
	"github.com/mcdev12/heistnight/internal/gateway"
	"github.com/mcdev12/heistnight/internal/liveness"
	"github.com/mcdev12/heistnight/internal/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg := config.NewConfigFromEnv()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Puzzle catalog: file when configured, built-in set otherwise.
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		loaded, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("failed to load puzzle catalog")
		}
		cat = loaded
	}

	// Event bus, with optional NATS mirror for external dashboards.
	bus := events.NewBus()
	defer bus.Close()
	if cfg.NATSURL != "" {
		if err := bus.ConnectNATS(cfg.NATSURL, cfg.SubjectPrefix); err != nil {
			log.Fatal().Err(err).Msg("failed to connect NATS mirror")
		}
	}

	sessionCfg := session.DefaultConfig()
	sessionCfg.TeamSize = cfg.TeamSize
	sessionCfg.Grace = cfg.GracePeriod
	sessionCfg.Hold = cfg.HoldDuration
	sessionCfg.Staleness = cfg.Staleness

	clock := clockwork.NewRealClock()
	orch := session.New(sessionCfg, cat, bus, clock)
	defer orch.Close()

	hub := gateway.NewHub(gateway.DefaultConnectionConfig(), orch)
	bus.AddSink(hub)

	monitor := liveness.New(clock, cfg.SweepInterval, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	go monitor.Run(ctx)
	go orch.RunSnapshots(ctx, cfg.SnapshotInterval)

	// Setup HTTP server
	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)
	hub.RegisterAdminRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		players, observers := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"heistnight","phase":%q,"player_connections":%d,"observer_connections":%d}`,
			orch.Phase(), players, observers)
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("heistnight server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
