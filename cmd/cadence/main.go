// Package main is the entry point for the Cadence playback backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cadencefm/cadence-player-backend/internal/config"
	"github.com/cadencefm/cadence-player-backend/internal/domain/catalog"
	"github.com/cadencefm/cadence-player-backend/internal/domain/history"
	"github.com/cadencefm/cadence-player-backend/internal/domain/player"
	"github.com/cadencefm/cadence-player-backend/internal/infra/engine"
	"github.com/cadencefm/cadence-player-backend/internal/infra/tokenstore"
	"github.com/cadencefm/cadence-player-backend/internal/transport/socketio"
	"github.com/cadencefm/cadence-player-backend/internal/version"
)

func main() {
	// Command line flags; values given explicitly win over config.toml.
	configPath := flag.String("config", "config.toml", "Path to config file")
	port := flag.String("port", "", "HTTP server port")
	apiBaseURL := flag.String("api-url", "", "Content API base URL")
	mpdHost := flag.String("mpd-host", "", "MPD host")
	mpdPort := flag.Int("mpd-port", 0, "MPD port")
	mpdPassword := flag.String("mpd-password", "", "MPD password")
	dataDir := flag.String("data", "", "Data directory for history and credentials")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "api-url":
			cfg.API.BaseURL = *apiBaseURL
		case "mpd-host":
			cfg.MPD.Host = *mpdHost
		case "mpd-port":
			cfg.MPD.Port = *mpdPort
		case "mpd-password":
			cfg.MPD.Password = *mpdPassword
		case "data":
			cfg.DataDir = *dataDir
		case "debug":
			cfg.Debug = *debug
		}
	})

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Playback Orchestration Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("api_url", cfg.API.BaseURL).
		Str("mpd_host", cfg.MPD.Host).
		Int("mpd_port", cfg.MPD.Port).
		Str("data_dir", cfg.DataDir).
		Msg("Configuration")

	// Credential store; without it the API client runs anonymous.
	tokens := tokenstore.NewStore(filepath.Join(cfg.DataDir, "credentials.db"))
	if err := tokens.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open credential store")
	}
	defer tokens.Close()

	catalogClient := catalog.NewClient(
		catalog.WithBaseURL(cfg.API.BaseURL),
		catalog.WithTokenSource(tokens),
	)

	// Background audio engine
	mpdEngine := engine.NewMPD(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
	defer mpdEngine.Close()
	adapter := engine.NewAdapter(mpdEngine)
	if err := adapter.EnsureInitialized(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio engine")
	}
	log.Info().Msg("Audio engine initialized")

	historyStore := history.NewStore(cfg.DataDir)

	orch := player.NewOrchestrator(adapter, catalogClient,
		player.WithHistory(historyStore),
	)

	// Socket.io server
	socketServer, err := socketio.NewServer(orch, historyStore, catalogClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	// State changes flow orchestrator -> debounced socket broadcasts.
	orch.SetChangeListener(socketServer.NotifyChange)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	// HTTP server
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := adapter.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","engine":"disconnected"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","engine":"connected"}`))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Status())
	})

	mux.HandleFunc("/api/v1/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(historyStore.Recent(50))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+cfg.Port).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
