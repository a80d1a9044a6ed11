// Package kbvec provides an asynchronous document embedding pipeline and a
// vector similarity engine for retrieval-augmented knowledge bases.
//
// Documents are submitted to a priority queue, chunked, embedded through the
// configured provider, and persisted; semantic, keyword, and hybrid search
// run over the stored vectors.
//
// Basic usage:
//
//	client, err := kbvec.New(
//	    kbvec.WithSQLite(".kbvec/data.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.Start(ctx)
//	defer client.Shutdown(context.Background())
//
//	// Submit a document for embedding
//	t, err := client.Queue.Submit(ctx, service.SubmitRequest{
//	    DocumentID:      "doc-1",
//	    KnowledgeBaseID: "kb-1",
//	    Content:         "…",
//	})
//
//	// Search the embedded corpus
//	resp, err := client.Search.Search(ctx, search.Query{
//	    Text: "how do indexes work",
//	    Type: search.TypeHybrid,
//	})
package kbvec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/vectorhaus/kbvec/application/service"
	"github.com/vectorhaus/kbvec/domain/search"
	"github.com/vectorhaus/kbvec/infrastructure/chunking"
	"github.com/vectorhaus/kbvec/infrastructure/notify"
	"github.com/vectorhaus/kbvec/infrastructure/persistence"
	"github.com/vectorhaus/kbvec/infrastructure/provider"
	infrasearch "github.com/vectorhaus/kbvec/infrastructure/search"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/database"
	"github.com/vectorhaus/kbvec/internal/log"
)

// Client construction and lifecycle errors.
var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = errors.New("no database configured")

	// ErrClientClosed indicates the client was already shut down.
	ErrClientClosed = errors.New("client is closed")
)

// Client is the main entry point for the kbvec library. Construct it with
// New, call Start to launch the background worker pool and retention
// janitor, and Shutdown to stop them and release resources.
//
// Access operations via struct fields:
//
//	client.Queue.Submit(ctx, req)
//	client.Search.Search(ctx, query)
//	client.Answer.Ask(ctx, req)
type Client struct {
	// Public service fields (direct access)
	Queue     *service.Queue
	Search    *service.Search
	Answer    *service.Answer
	Documents *service.Documents

	db         database.Database
	hub        *notify.Hub
	worker     *service.Worker
	janitor    *service.Janitor
	embedding  *provider.EmbeddingClient
	generation *provider.GenerationClient

	cfg     config.AppConfig
	logger  *log.Logger
	started atomic.Bool
	closed  atomic.Bool
}

// New creates a new Client with the given options. Background processing
// does not begin until Start is called.
func New(opts ...Option) (*Client, error) {
	cc := newClientConfig()
	for _, opt := range opts {
		opt(cc)
	}

	dbURL := cc.dbURL
	if dbURL == "" {
		dbURL = cc.cfg.DBURL()
	}
	if dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cc.logger
	if logger == nil {
		logger = log.NewLogger(cc.cfg)
	}
	slogger := logger.Slog()

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}

	// Stores
	taskStore := persistence.NewTaskStore(db, slogger)
	chunkStore := persistence.NewChunkStore(db, slogger)
	cacheStore := persistence.NewCacheStore(db, slogger)

	// The FTS5 lexical index exists only on SQLite. Without it keyword and
	// hybrid search report themselves unavailable.
	var (
		keywordIndexer  service.KeywordIndexer
		keywordSearcher search.KeywordSearcher
	)
	if db.IsSQLite() {
		keywordStore, err := persistence.NewSQLiteKeywordStore(db, slogger)
		if err != nil {
			// A SQLite driver built without the fts5 tag cannot create the
			// virtual table. Semantic search still works, so degrade
			// instead of refusing to construct the client.
			logger.Warn("keyword index unavailable", "error", err.Error())
		} else {
			keywordIndexer = keywordStore
			keywordSearcher = keywordStore
		}
	} else {
		logger.Info("keyword index unavailable", "reason", "requires sqlite fts5")
	}

	// Provider clients
	resolver := provider.NewChainResolver(cc.resolver, cc.cfg.Embedding().APIKey())
	embedding := provider.NewEmbeddingClient(cc.cfg.Embedding(), resolver, logger)
	generation := provider.NewGenerationClient(cc.cfg.Generation(), logger)

	hub := notify.NewHub(slogger)
	splitter := chunking.NewSplitter(chunking.NewTokenCounter())
	semantic := infrasearch.NewSemanticSearcher(chunkStore, slogger)

	client := &Client{
		db:         db,
		hub:        hub,
		embedding:  embedding,
		generation: generation,
		cfg:        cc.cfg,
		logger:     logger,
	}

	client.Queue = service.NewQueue(taskStore, hub, cc.cfg.Queue(), slogger)
	client.Search = service.NewSearch(embedding, semantic, keywordSearcher, search.NewFusion(), chunkStore, slogger).
		WithDefaults(search.Defaults{TopK: cc.cfg.SearchLimit(), Threshold: cc.cfg.ScoreThreshold()})
	client.Answer = service.NewAnswer(client.Search, generation, cacheStore, cc.cfg.Cache(), slogger)
	client.Documents = service.NewDocuments(chunkStore, keywordIndexer, taskStore, slogger)

	client.worker = service.NewWorker(
		taskStore, chunkStore, embedding, splitter,
		keywordIndexer, cc.statusSink, hub,
		cc.cfg.Queue(), cc.cfg.Chunking(), slogger,
	)
	client.janitor = service.NewJanitor(taskStore, cacheStore, cc.cfg.Queue(), slogger)

	return client, nil
}

// Start launches the background worker pool and the retention janitor.
// Calling Start more than once is a no-op.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.worker.Start(ctx)
	c.janitor.Start(ctx)
}

// Shutdown stops background processing, waiting for in-flight tasks to
// finish or re-enqueue, then closes the event hub and the database.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	if c.started.Load() {
		c.worker.Stop()
		c.janitor.Stop()
	}
	c.hub.Close()

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	c.logger.InfoContext(ctx, "kbvec client closed")
	return nil
}

// Hub returns the task event hub for realtime progress subscriptions.
func (c *Client) Hub() *notify.Hub {
	return c.hub
}

// Embedding returns the embedding provider client.
func (c *Client) Embedding() *provider.EmbeddingClient {
	return c.embedding
}

// BreakerStatus reports the generation client's circuit breaker state for
// health checks.
func (c *Client) BreakerStatus() provider.BreakerStatus {
	return c.generation.Breaker().Status()
}

// Config returns the application configuration the client was built with.
func (c *Client) Config() config.AppConfig {
	return c.cfg
}

// Logger returns the client's structured logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger.Slog()
}

// Log returns the client's logger with correlation support.
func (c *Client) Log() *log.Logger {
	return c.logger
}
