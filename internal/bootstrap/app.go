package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/archive"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/chunker"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/embedding"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/pdfextract"
	"gopherai-docqa/internal/platform/gormdb"
	minioClient "gopherai-docqa/internal/platform/minio"
	mysqlClient "gopherai-docqa/internal/platform/mysql"
	postgresClient "gopherai-docqa/internal/platform/postgres"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	sqliteClient "gopherai-docqa/internal/platform/sqlite"
	"gopherai-docqa/internal/repository"
	chunkstore "gopherai-docqa/internal/storage/sqlite"
	"gopherai-docqa/internal/vectorindex"
	"gopherai-docqa/internal/worker"
)

// Options controls the parts of the wiring that only the server needs.
type Options struct {
	// StartWorkers runs the chat record consumer. Without it, chat records
	// are written to the database directly.
	StartWorkers bool
	// PurgeOrphans lets startup recovery delete chunks whose document is
	// not registered and that are older than orphanGrace.
	PurgeOrphans bool
}

// orphanGrace covers an upload that another process is still ingesting.
const orphanGrace = 10 * time.Minute

// App owns every long-lived resource of the process.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	ChunkDB      *sql.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	RecordWorker *worker.ChatRecordPersistWorker

	Index        *vectorindex.Index
	Registry     *app.DocumentRegistry
	Pipeline     *app.Pipeline
	Orchestrator *app.Orchestrator
	Ledger       *app.ChatLedger

	StartedAt time.Time
}

// New loads the configuration and builds the server wiring.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return Build(ctx, cfg, Options{StartWorkers: true, PurgeOrphans: true})
}

// Build connects every configured dependency, rebuilds the vector index from
// the chunk store and assembles the services. On error, whatever was already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			if closeErr := a.Close(); closeErr != nil {
				log.Printf("close partially built app failed: %v", closeErr)
			}
		}
	}()

	a.DB, err = openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.DB.AutoMigrate(&model.Document{}, &model.ChatRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.ChunkDB, err = sqliteClient.New(ctx, cfg.Vector.Path)
	if err != nil {
		return nil, err
	}
	chunks, err := chunkstore.NewChunkStore(ctx, a.ChunkDB)
	if err != nil {
		return nil, err
	}

	var fileArchive app.FileArchive
	if cfg.Archive.Enabled {
		client, err := minioClient.New(ctx, cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.Bucket, cfg.Archive.Secure)
		if err != nil {
			return nil, err
		}
		fileArchive = archive.NewMinioArchive(client, cfg.Archive.Bucket)
	}

	var historyCache *cache.HistoryCache
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		historyCache = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	recordRepo := repository.NewChatRecordRepository(a.DB)
	var publisher app.ChatRecordPublisher
	if cfg.RabbitMQ.Enabled && opts.StartWorkers {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		var invalidator worker.HistoryInvalidator
		if historyCache != nil {
			invalidator = historyCache
		}
		a.RecordWorker = worker.NewChatRecordPersistWorker(a.MQConn, recordRepo, invalidator, cfg.RabbitMQ.ChatRecordQueue)
		if err := a.RecordWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start chat record worker failed: %w", err)
		}
		publisher = rabbitmqClient.NewChatRecordPublisher(a.MQConn, cfg.RabbitMQ.ChatRecordQueue)
	}

	embedder, generator, err := newModels(cfg)
	if err != nil {
		return nil, err
	}
	gateway := embedding.NewGateway(embedder, embedding.Config{
		BatchSize:         cfg.Pipeline.EmbeddingBatchSize,
		MaxRetries:        cfg.Pipeline.MaxRetries,
		Backoff:           cfg.Pipeline.RetryBackoff(),
		RequestsPerSecond: cfg.Pipeline.EmbeddingRPS,
	})

	a.Index = vectorindex.New()
	a.Registry = app.NewDocumentRegistry(repository.NewDocumentRepository(a.DB), chunks, a.Index, fileArchive)
	report, err := a.Registry.Recover(ctx, app.RecoverOptions{
		PurgeOrphans: opts.PurgeOrphans,
		OrphanGrace:  orphanGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("recover document registry failed: %w", err)
	}
	log.Printf("recovered %d documents, %d chunks (%d orphan chunks in %d documents, %d purged; %d documents missing chunks)",
		report.Documents, report.Chunks, report.OrphanChunks, len(report.OrphanDocIDs),
		len(report.PurgedDocIDs), len(report.MissingChunks))

	ch := chunker.New(
		chunker.WithWindowSize(cfg.Pipeline.WindowSize),
		chunker.WithOverlapFraction(cfg.Pipeline.OverlapFraction),
	)
	a.Pipeline = app.NewPipeline(ch, pdfextract.ExtractPages, gateway, a.Index, chunks, a.Registry, fileArchive, app.PipelineOptions{
		MaxFileSize: cfg.Pipeline.MaxFileSizeBytes(),
		Concurrency: cfg.Pipeline.IngestConcurrency,
	})

	var ledgerCache app.HistoryCache
	if historyCache != nil {
		ledgerCache = historyCache
	}
	a.Ledger = app.NewChatLedger(recordRepo, publisher, ledgerCache, cfg.Pipeline.HistoryLimit)
	a.Orchestrator = app.NewOrchestrator(gateway, a.Index, chunks, a.Registry, generator, a.Ledger, app.OrchestratorOptions{
		TopK:         cfg.Pipeline.TopK,
		SnippetChars: cfg.Pipeline.SnippetChars,
	})

	return a, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "", "mysql":
		return mysqlClient.New(ctx, cfg.MySQLDSN())
	case "postgres":
		return postgresClient.New(ctx, cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func newModels(cfg *config.Config) (embedding.Embedder, ai.Generator, error) {
	switch cfg.LLM.Provider {
	case "", "mock":
		return ai.NewHashEmbedder(ai.DefaultHashDimension), ai.MockGenerator{}, nil
	case "openai":
		if cfg.LLM.APIKey == "" {
			return nil, nil, fmt.Errorf("llm.api_key is required for provider openai")
		}
		client := ai.NewOpenAICompatibleClient(ai.Config{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			Timeout:        cfg.LLMTimeout(),
		})
		return client, ai.NewChatGenerator(client), nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var closeErr error
	if a.RecordWorker != nil {
		a.RecordWorker.Close()
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
	if a.ChunkDB != nil {
		if err := a.ChunkDB.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := gormdb.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
