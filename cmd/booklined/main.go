// Command booklined runs the appointment booking service: the conversation
// engine served over NATS, with SQLite storage and a langchaingo-backed
// inference client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bookline/bookline/pkg/bookline"
	"github.com/bookline/bookline/pkg/bookline/checkpoint"
	"github.com/bookline/bookline/pkg/bookline/compensate"
	"github.com/bookline/bookline/pkg/bookline/config"
	"github.com/bookline/bookline/pkg/bookline/infer"
	"github.com/bookline/bookline/pkg/bookline/observability"
	"github.com/bookline/bookline/pkg/bookline/repo"
	"github.com/bookline/bookline/pkg/bookline/transport"
	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "booklined:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	settings, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(settings.LogLevel)
	logger.Info("starting", "service", settings.ServiceName)

	if settings.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	repository, err := repo.NewSQLiteRepository(settings.DBPath)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repository.Close()
	logger.Info("repository ready", "path", settings.DBPath)

	checkpoints, err := newCheckpointStore(settings)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	journal, err := compensate.NewSQLiteStore(settings.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	model, err := openai.New(
		openai.WithToken(settings.OpenAIAPIKey),
		openai.WithModel(settings.OpenAIModel),
	)
	if err != nil {
		return fmt.Errorf("init model: %w", err)
	}
	client := infer.NewLangChain(model, infer.WithTimeout(settings.InferTimeout))
	logger.Info("inference client ready", "model", settings.OpenAIModel)

	engine, err := bookline.NewEngine(repository, client, checkpoints,
		bookline.WithEngineLogger(logger),
		bookline.WithCompensationJournal(journal),
		bookline.WithEngineMetrics(observability.NewMetricsRecorder()),
	)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Retry journaled compensations in the background.
	runner := compensate.NewRunner(journal, repository, compensate.WithLogger(logger))
	go runner.Run(ctx, settings.FlushInterval)

	nt, err := transport.NewNATSTransport(engine, transport.Options{
		URL:           settings.NATSURL,
		ServiceName:   settings.ServiceName,
		SubjectPrefix: settings.SubjectPrefix,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	defer nt.Close()

	if err := nt.Start(); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	logger.Info("serving", "nats_url", settings.NATSURL, "subject_prefix", settings.SubjectPrefix)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newCheckpointStore picks the checkpoint backend from the URL: redis:// for
// Redis with the configured session TTL, anything else is a SQLite path.
func newCheckpointStore(settings config.Settings) (checkpoint.Store, error) {
	if strings.HasPrefix(settings.CheckpointURL, "redis://") ||
		strings.HasPrefix(settings.CheckpointURL, "rediss://") {
		return checkpoint.NewRedisStore(settings.CheckpointURL, settings.SessionTTL)
	}
	return checkpoint.NewSQLiteStore(settings.CheckpointURL)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
