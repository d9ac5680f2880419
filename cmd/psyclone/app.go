package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	"github.com/JamesWemyss/psyclone/config"
	"github.com/JamesWemyss/psyclone/conversations"
	"github.com/JamesWemyss/psyclone/intent"
	"github.com/JamesWemyss/psyclone/llm"
	"github.com/JamesWemyss/psyclone/llm/provider"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/metrics"
	"github.com/JamesWemyss/psyclone/migrations"
	"github.com/JamesWemyss/psyclone/tools"
)

// storage is the database layer shared by every subcommand.
type storage struct {
	db        *sql.DB
	store     *memory.Store
	executors *actions.Executors
	tools     *tools.Registry
}

func openStorage(cfg *config.ServerConfig, logger zerolog.Logger) (*storage, error) {
	logger.Info().Str("path", cfg.Database.Path).Msg("Initializing database and memory store")
	db, err := memory.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	store, err := memory.NewStore(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}

	ex := actions.New(store, cfg.Location(), logger)
	registry := tools.NewRegistry(logger)
	registry.RegisterActionTools(ex, actions.AssistantSearchLimit)
	registry.RegisterNotificationTools(tools.NewDesktopNotifier(logger))

	return &storage{db: db, store: store, executors: ex, tools: registry}, nil
}

func (s *storage) Close() error {
	return s.db.Close()
}

// services is the full daemon graph: storage plus the model-backed flows.
type services struct {
	*storage
	turns        *conversations.Store
	metrics      *metrics.Metrics
	dispatcher   *agent.Dispatcher
	orchestrator *agent.Orchestrator
	runner       *agent.AsyncRunner
}

func buildServices(ctx context.Context, cfg *config.ServerConfig, logger zerolog.Logger) (*services, error) {
	st, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLMProviders)
	key, err := registry.Resolve("")
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to resolve model provider: %w", err)
	}
	base, err := provider.New(ctx, key, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	client := llm.WrapWithMiddleware(
		agent.NewRetryingClient(base, logger, nil),
		agent.NewLoggingMiddleware(logger),
	)

	loc := cfg.Location()
	classifier := intent.NewModelClassifier(client, key.Model, loc, logger)
	router := intent.NewCommandRouter(client, key.Model, loc, logger)
	dispatcher := agent.NewDispatcher(st.executors, classifier, router, client, key.Model, logger)

	svc := &services{
		storage:    st,
		turns:      conversations.NewStore(st.db, logger),
		metrics:    metrics.New(),
		dispatcher: dispatcher,
	}

	var source agent.TurnSource
	switch cfg.Assistant.Transport {
	case "poll":
		svc.runner = agent.NewAsyncRunner(client, logger)
		source = agent.NewPollSource(svc.runner)
	default:
		source = agent.NewSyncSource(client)
	}

	temperature := cfg.Assistant.Temperature
	svc.orchestrator, err = agent.NewOrchestrator(source, st.tools, agent.Config{
		Model:         key.Model,
		MaxIterations: cfg.Assistant.MaxIterations,
		Timeout:       cfg.Timeout(),
		PollInterval:  cfg.PollInterval(),
		MaxTokens:     cfg.Assistant.MaxTokens,
		Temperature:   &temperature,
		Location:      loc,
	}, logger, agent.WithRecorder(svc.turns), agent.WithMetrics(svc.metrics))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	logger.Info().
		Str("provider", key.Provider).
		Str("model", key.Model).
		Str("transport", cfg.Assistant.Transport).
		Msg("Services initialized")
	return svc, nil
}

// Close waits for in-flight polled model turns, then closes the database.
func (s *services) Close() error {
	if s.runner != nil {
		s.runner.Wait()
	}
	return s.storage.Close()
}
