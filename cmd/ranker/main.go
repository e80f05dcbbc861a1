package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bwsrank/ingestion/internal/client"
	"bwsrank/ingestion/internal/config"
	"bwsrank/ingestion/internal/metrics"
	"bwsrank/ingestion/internal/ranker"
	"bwsrank/ingestion/internal/repository"
	"bwsrank/ingestion/internal/scoring"
	"bwsrank/ingestion/internal/state"

	"github.com/itbasis/go-clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Setup logger
	setupLogger(cfg)

	log.Info().Msg("Starting BWS ranking run")
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Str("table_backend", cfg.TableBackend).
		Str("state_backend", cfg.StateBackend).
		Msg("Configuration loaded")

	// Stop between players on SIGINT/SIGTERM; the checkpoint keeps the progress
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	store, err := openStateStore(ctx, cfg, clk)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer store.Close()

	sheets, closeSheets, err := repository.OpenSheets(ctx, cfg.TableBackend, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}, cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sheet store")
	}
	defer closeSheets()

	// Initialize osu! API client
	tokens := client.NewTokenProvider(
		cfg.OsuTokenURL,
		client.Credentials{ClientID: cfg.OsuClientID, ClientSecret: cfg.OsuClientSecret},
		cfg.OsuTimeout,
		store,
		clk,
	)
	osuClient := client.NewClient(cfg.OsuBaseURL, tokens.TokenSource(ctx), client.Options{
		Timeout:    cfg.OsuTimeout,
		MaxRetries: cfg.OsuMaxRetries,
		RetryDelay: cfg.OsuRetryDelay,
	})
	log.Info().Str("base_url", cfg.OsuBaseURL).Msg("osu! API client initialized")

	processor := ranker.NewProcessor(osuClient, state.NewCheckpoints(store), clk, ranker.ProcessorConfig{
		Policy: scoring.Policy{
			BadgeBase:      cfg.BWSBadgeBase,
			BadgeExponent:  cfg.BWSBadgeExponent,
			FallbackRating: cfg.FallbackDuelRating,
		},
		BadgeMinYear: cfg.BadgeMinYear,
		TimeBudget:   cfg.TimeBudget,
	})

	job := ranker.NewJob(processor, sheets, store, clk, ranker.JobConfig{
		ImportSheet:  cfg.ImportSheet,
		ExportSheet:  cfg.ExportSheet,
		FilterSheet:  cfg.FilterSheet,
		StagingSheet: cfg.StagingSheet(),
		Accumulate:   cfg.AccumulateResumedOutput,
		LeaseTTL:     cfg.RunLeaseTTL,
	})

	outcome, runErr := job.Run(ctx)

	pushMetrics(cfg)

	if errors.Is(runErr, ranker.ErrRunInProgress) {
		log.Warn().Msg("Another run is in progress, exiting")
		return
	}
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("Ranking run failed")
	}

	log.Info().
		Str("run_id", outcome.State.RunID).
		Str("status", string(outcome.Status)).
		Int("processed", len(outcome.Processed)).
		Int("next_offset", outcome.State.Offset).
		Msg("Ranking run finished")
}

// setupLogger configures the zerolog logger
func setupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Set log level
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		parsedLevel, err := zerolog.ParseLevel(cfg.LogLevel)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

func openStateStore(ctx context.Context, cfg *config.Config, clk clock.Clock) (state.Store, error) {
	if cfg.StateBackend == "memory" {
		log.Warn().Msg("Using in-memory state: token and checkpoint are lost on exit")
		return state.NewMemoryStore(clk), nil
	}

	return state.NewRedisStore(ctx, state.RedisConfig{
		Addr:      cfg.RedisAddr(),
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisKeyPrefix,
	})
}

func pushMetrics(cfg *config.Config) {
	if cfg.PushgatewayURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metrics.Push(ctx, cfg.PushgatewayURL, "bwsrank"); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
		return
	}
	log.Debug().Str("url", cfg.PushgatewayURL).Msg("Metrics pushed")
}
