package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eloquentai/eloquent-chat/db"
	"github.com/eloquentai/eloquent-chat/internal/chat"
	"github.com/eloquentai/eloquent-chat/internal/config"
	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/knowledge"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/postgres"
	"github.com/eloquentai/eloquent-chat/internal/prompt"
	"github.com/eloquentai/eloquent-chat/internal/provider"
	"github.com/eloquentai/eloquent-chat/internal/retrieval"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

// app holds the wired application components shared by the serve and seed
// commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger log.Logger

	provider  *provider.OpenAI
	knowledge *knowledge.Store
	ingestor  *knowledge.Ingestor
	sessions  *session.Store
	signer    *identity.Signer
	gate      *identity.Gate
	orch      *chat.Orchestrator
}

// setup loads configuration, applies pending migrations, and wires the
// full pipeline.
func setup(ctx context.Context, logger log.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	prov, err := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.ChatModel,
		TitleModel:     cfg.TitleModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
	}, logger.With("component", "provider"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	kb := knowledge.NewStore(pool, logger.With("component", "knowledge"))
	sessions := session.NewStore(pool, logger.With("component", "session"))
	users := identity.NewUsers(pool)
	signer := identity.NewSigner([]byte(cfg.HMACSecret), identity.DefaultCredentialTTL)
	gate := identity.NewGate(sessions, users, signer, cfg.AnonymousQuota, logger.With("component", "identity"))

	retriever := retrieval.New(prov, kb, logger.With("component", "retrieval"))
	assembler, err := prompt.New(prompt.Config{
		Model:        cfg.ChatModel,
		TokenBudget:  cfg.PromptBudget,
		HistoryTurns: cfg.HistoryTurns,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating prompt assembler: %w", err)
	}

	streams := chat.NewStreamController(prov, logger.With("component", "stream"))
	orch := chat.New(retriever, assembler, streams, prov, sessions, gate, chat.Config{
		TopK:                cfg.TopK,
		SimilarityThreshold: float32(cfg.SimilarityThreshold),
		HistoryTurns:        cfg.HistoryTurns,
	}, logger.With("component", "chat"))

	return &app{
		cfg:       cfg,
		pool:      pool,
		logger:    logger,
		provider:  prov,
		knowledge: kb,
		ingestor:  knowledge.NewIngestor(kb, prov, logger.With("component", "ingest")),
		sessions:  sessions,
		signer:    signer,
		gate:      gate,
		orch:      orch,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}
