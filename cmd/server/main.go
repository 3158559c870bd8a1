// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/seedbox/internal/api/connect"
	"github.com/osa030/seedbox/internal/api/ws"
	"github.com/osa030/seedbox/internal/app/filter"
	"github.com/osa030/seedbox/internal/app/genre"
	"github.com/osa030/seedbox/internal/app/session"
	"github.com/osa030/seedbox/internal/infra/config"
	"github.com/osa030/seedbox/internal/infra/logger"
	"github.com/osa030/seedbox/internal/infra/spotify"
)

var (
	app        = kingpin.New("seedbox-server", "seedbox recommendation assistant server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	jsonLogs   = app.Flag("json", "Write JSON log lines to stdout").Bool()

	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		JSON:   *jsonLogs,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closeLog() }()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		_ = closeLog()
		os.Exit(1)
	}
}

// run executes the main server logic so deferred cleanup runs on every return.
func run(cfg *config.Config) error {
	chain, err := filter.NewChainFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	fallback, err := genre.NewFallbackFromConfig(cfg)
	if err != nil {
		return errors.Wrap(err, "invalid genre source config")
	}

	ctx := context.Background()
	spotifyClient, err := spotify.New(ctx, spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RefreshToken: cfg.Spotify.RefreshToken,
		Market:       cfg.Spotify.Market,
		MaxRetries:   cfg.Spotify.MaxRetries,
		RetryDelay:   cfg.RetryDelay(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Spotify client")
	}

	registry := session.NewRegistry(spotifyClient, session.Options{
		Filters:        chain,
		Fallback:       fallback,
		LikedPageSize:  cfg.Library.LikedPageSize,
		SearchPageSize: cfg.Library.SearchPageSize,
		DefaultCount:   cfg.Recommendations.DefaultCount,
	})

	if cfg.Server.APIToken == "" {
		zlog.Warn().Msg("API token not configured, requests are not authenticated")
	}

	mux := http.NewServeMux()
	path, handler := apiconnect.NewAssistantService(registry).Handler(
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.APIToken)),
	)
	mux.Handle(path, handler)
	mux.Handle(cfg.Server.WebsocketPath, ws.NewFeed(registry, cfg.Server.APIToken))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s rpc=%s websocket=%s", cfg.Server.Addr, path, cfg.Server.WebsocketPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		registry.CloseAll()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close sessions first so subscription streams terminate
	registry.CloseAll()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range filter.RegisteredNames() {
		f := filter.GetRegistered()[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
