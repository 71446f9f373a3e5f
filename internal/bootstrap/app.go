package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/cache"
	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/logger"
	"docchat/internal/model"
	postgresClient "docchat/internal/platform/postgres"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/rag"
	"docchat/internal/repository"
	"docchat/internal/telemetry"
	"docchat/internal/worker"
)

// Version is overridden at build time with -ldflags.
var Version = "1.0.0"

type App struct {
	Config   *config.Config
	Postgres *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection

	Documents *app.DocumentService
	Chat      *app.ChatService
	Admin     *app.AdminService
	Auth      *app.AuthService
	Health    *app.HealthService

	TurnWorker   *worker.TurnPersistWorker
	CacheSweeper *worker.CacheSweeper

	shutdownTracer func(context.Context) error
	StartedAt      time.Time
}

// Connect loads configuration and opens the document store. It is enough for
// maintenance commands that do not serve traffic.
func Connect(ctx context.Context) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.Init(cfg.App.GinMode)

	db, err := postgresClient.New(ctx, cfg.PostgresDSN(), cfg.App.GinMode == "debug")
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func New(ctx context.Context) (*App, error) {
	cfg, db, err := Connect(ctx)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Postgres: db, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("bootstrap: cleanup failed", "error", closeErr)
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	if err := postgresClient.Migrate(ctx, a.Postgres); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
			ServiceName:  cfg.App.Name,
			Environment:  cfg.App.Env,
			Version:      Version,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		a.shutdownTracer = shutdown
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		return err
	}

	var historyCache app.HistoryCache
	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		historyCache = cache.NewHistoryCache(a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	documentRepo := repository.NewDocumentRepository(a.Postgres)
	chunkRepo := repository.NewChunkRepository(a.Postgres)
	conversationRepo := repository.NewConversationRepository(a.Postgres)

	var turnWriter app.TurnWriter = conversationRepo
	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.TurnWorker = worker.NewTurnPersistWorker(a.MQConn, conversationRepo, cfg.RabbitMQ.TurnPersistQueue)
		if err := a.TurnWorker.Start(ctx); err != nil {
			return fmt.Errorf("start turn worker failed: %w", err)
		}
		turnWriter = rabbitmqClient.NewTurnPublisher(a.MQConn, cfg.RabbitMQ.TurnPersistQueue)
	}

	if cfg.Embedding.Dimensions != model.EmbeddingDimensions {
		return fmt.Errorf("embedding dimensions %d do not match the vector column width %d", cfg.Embedding.Dimensions, model.EmbeddingDimensions)
	}
	openai := ai.NewOpenAICompatibleClient(ai.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	embedder := rag.NewEmbedder(openai, cfg.Embedding.MaxBatchSize, rag.NewIntervalThrottle(cfg.Embedding.BatchDelay))
	generator := ai.NewBreakerGenerator(cfg.Generation.Provider, newGenerator(cfg.Generation))

	retrievalCache := rag.NewRetrievalCache(cfg.RAG.CacheTTL, nil)
	a.CacheSweeper = worker.NewCacheSweeper(retrievalCache, cfg.RAG.CacheSweepInterval)
	if err := a.CacheSweeper.Start(); err != nil {
		return err
	}
	index := rag.NewIndex(chunkRepo, rag.SearchPolicy{
		TopK:        cfg.RAG.TopK,
		Threshold:   cfg.RAG.Threshold,
		RelaxBelow:  cfg.RAG.RelaxBelow,
		RelaxFactor: cfg.RAG.RelaxFactor,
	})
	retriever := rag.NewRetriever(embedder, index, retrievalCache, cfg.RAG.Rerank)

	a.Documents = app.NewDocumentService(documentRepo, embedder,
		chunker.New(chunker.Options{MaxWords: chunker.DefaultMaxWords, OverlapWords: chunker.DefaultOverlapWords}),
		metrics,
		app.DocumentServiceConfig{
			MaxUploadBytes: cfg.App.MaxUploadBytes,
			BatchSize:      cfg.Ingest.BatchSize,
			Throttle:       rag.NewIntervalThrottle(cfg.Ingest.BatchDelay),
			Dimensions:     model.EmbeddingDimensions,
		},
	)
	a.Chat = app.NewChatService(retriever, conversationRepo, turnWriter, historyCache, generator, metrics, app.ChatServiceConfig{
		HistoryLimit:     cfg.Chat.HistoryLimit,
		PromptHistory:    cfg.Chat.PromptHistory,
		MaxMessageChars:  cfg.Chat.MaxMessageChars,
		MaxContextTokens: cfg.RAG.MaxContextTokens,
		LowConfidence:    cfg.Chat.LowConfidence,
		BudgetHistory:    cfg.Chat.BudgetHistory,
		MaxTokens:        cfg.Generation.MaxTokens,
		Temperature:      cfg.Generation.Temperature,
	})
	a.Admin = app.NewAdminService(chunkRepo, conversationRepo, retrievalCache, historyCache, cfg.Chat.ActiveSessionCap)
	a.Auth = app.NewAuthService(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.Health = app.NewHealthService(a.healthProbes(chunkRepo, documentRepo), a.StartedAt)

	logger.Info("bootstrap: ready",
		"env", cfg.App.Env,
		"generation_provider", cfg.Generation.Provider,
		"redis", a.Redis != nil,
		"rabbitmq", a.MQConn != nil,
	)
	return nil
}

func newGenerator(cfg config.GenerationConfig) ai.Generator {
	if cfg.Provider == "openai" {
		return ai.NewOpenAICompatibleClient(ai.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	}
	return ai.NewAnthropicClient(ai.AnthropicConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
}

func (a *App) healthProbes(chunks *repository.ChunkRepository, documents *repository.DocumentRepository) app.HealthProbes {
	probes := app.HealthProbes{
		Database: func(ctx context.Context) error {
			return postgresClient.Ping(ctx, a.Postgres)
		},
		VectorExtension: chunks.ExtensionInstalled,
		DocumentCounts: func(ctx context.Context) (int64, int64, error) {
			docs, err := documents.CountDocuments(ctx)
			if err != nil {
				return 0, 0, err
			}
			n, err := documents.CountChunks(ctx)
			return docs, n, err
		},
		EmbeddingKey:  a.Config.Embedding.APIKey != "",
		GenerationKey: a.Config.Generation.APIKey != "",
	}
	if a.Redis != nil {
		probes.Redis = func(ctx context.Context) error {
			return redisClient.Ping(ctx, a.Redis)
		}
	}
	if a.MQConn != nil {
		probes.RabbitMQ = func() bool {
			return rabbitmqClient.Healthy(a.MQConn)
		}
	}
	return probes
}

func (a *App) Close() error {
	var closeErr error
	if a.CacheSweeper != nil {
		a.CacheSweeper.Stop()
	}
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracer(ctx); err != nil {
			closeErr = err
		}
	}
	if a.Postgres != nil {
		sqlDB, err := a.Postgres.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
