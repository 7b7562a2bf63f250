package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/keeper-notes-be/internal/api"
	"github.com/isdelr/keeper-notes-be/internal/api/handlers"
	"github.com/isdelr/keeper-notes-be/internal/auth"
	"github.com/isdelr/keeper-notes-be/internal/cache"
	"github.com/isdelr/keeper-notes-be/internal/config"
	"github.com/isdelr/keeper-notes-be/internal/database"
	"github.com/isdelr/keeper-notes-be/internal/logger"
	"github.com/isdelr/keeper-notes-be/internal/monitoring"
	"github.com/isdelr/keeper-notes-be/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	configFile := flag.String("config", "", "path to a config file (yaml, json, toml or env)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Set up database
	db, err := database.New(startCtx, database.Options{
		Driver:          cfg.DatabaseDriver,
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(startCtx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up the note list cache
	var (
		noteCache   cache.NoteCache = cache.Nop{}
		cachePinger handlers.Pinger
	)
	if cfg.RedisAddr != "" {
		rc, err := cache.Connect(startCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, serving notes without cache")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Note list cache enabled")
			noteCache, cachePinger = rc, rc
		}
	}
	defer noteCache.Close()

	// Set up services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	accountService, err := services.NewAccountService(db, tokens, cfg.BCryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize account service")
	}
	noteService := services.NewNoteService(db, noteCache)

	// Set up and run the maintenance scheduler
	var scheduler *monitoring.Scheduler
	if cfg.MaintenanceSchedule != "" {
		scheduler, err = monitoring.NewScheduler(db, cfg.MaintenanceSchedule)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize maintenance scheduler")
		}
		scheduler.Run()
	}

	// Set up router
	router := api.NewRouter(api.Options{
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
		AuthRateBurst:     cfg.AuthRateBurst,
	}, tokens, accountService, noteService, db, cachePinger)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	log.Info().Msg("Server exiting")
}
