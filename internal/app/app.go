// Package app builds the long-lived pipeline services from configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/api"
	"github.com/regwatch/regwatch/internal/classifier"
	"github.com/regwatch/regwatch/internal/clock/system"
	"github.com/regwatch/regwatch/internal/config"
	"github.com/regwatch/regwatch/internal/dispatcher"
	"github.com/regwatch/regwatch/internal/extractor"
	collyfetcher "github.com/regwatch/regwatch/internal/fetcher/colly"
	"github.com/regwatch/regwatch/internal/hash/sha256"
	"github.com/regwatch/regwatch/internal/id/uuid"
	"github.com/regwatch/regwatch/internal/ingest"
	"github.com/regwatch/regwatch/internal/matching"
	"github.com/regwatch/regwatch/internal/policy/ratelimit"
	memorypublisher "github.com/regwatch/regwatch/internal/publisher/memory"
	gcppublisher "github.com/regwatch/regwatch/internal/publisher/pubsub"
	"github.com/regwatch/regwatch/internal/regwatch"
	gcsstorage "github.com/regwatch/regwatch/internal/storage/gcs"
	localstorage "github.com/regwatch/regwatch/internal/storage/local"
	memorystore "github.com/regwatch/regwatch/internal/storage/memory"
	pgstore "github.com/regwatch/regwatch/internal/storage/postgres"
	"github.com/regwatch/regwatch/internal/xref"
)

// ErrNoDatabase is returned by operations that need Postgres when no DSN is configured.
var ErrNoDatabase = errors.New("database.dsn is not configured")

// Store is every persistence port the pipeline needs.
type Store interface {
	regwatch.UpdateStore
	regwatch.WatchListStore
	regwatch.MatchStore
	regwatch.NotificationStore
	regwatch.DossierStore
	regwatch.LinkStore
	regwatch.StatsStore
}

// App holds the shared services for one process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store       Store
	pg          *pgstore.Store
	gcs         *gcsstorage.BlobStore
	pubsub      *gcppublisher.Publisher
	engine      *matching.Engine
	coordinator *ingest.Coordinator
	resolver    *xref.Resolver
	apiServer   *api.Server
}

// Build creates the application's dependencies. Remote backends are dialed here
// so misconfiguration fails at startup.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("feeds", len(cfg.Ingest.Feeds)),
		zap.Int("sites", len(cfg.Ingest.Sites)),
	)

	ok := false
	defer func() {
		if !ok {
			a.closeInfrastructure()
		}
	}()

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	blobs, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	ids := uuid.New()
	clock := system.New()
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RateLimitRPS,
		DefaultBurst: cfg.HTTP.RateLimitBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
	}, limiter)

	dispatch := dispatcher.New(a.store, a.store, publisher, ids, clock, dispatcher.Config{
		Topic: cfg.Events.Topic,
	}, logger)
	a.engine = matching.NewEngine(a.store, a.store, a.store, dispatch, ids, clock, logger)

	sources, err := ingest.BuildSources(cfg.Ingest, fetcher, clock, cfg.RecencyWindow(), logger)
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}
	var archive *ingest.Archive
	if blobs != nil {
		archive = ingest.NewArchive(blobs, sha256.New(), cfg.Archive.Prefix)
	}
	a.coordinator = ingest.NewCoordinator(
		sources,
		a.store,
		extractor.New(fetcher, cfg.Ingest.MaxTextChars, logger),
		a.setupClassifier(),
		a.engine,
		archive,
		ids,
		clock,
		logger,
	)
	a.resolver = xref.New(a.store, cfg.XRef.Limit, logger)

	deps := api.Deps{
		Ingester: a.coordinator,
		Matcher:  a.engine,
		Matches:  a.store,
		Linker:   a.resolver,
		Stats:    a.store,
	}
	if a.pg != nil {
		deps.Ready = a.pg.Ping
	}
	a.apiServer = api.NewServer(deps, api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
		Backfill:    a.BackfillOptions(),
	}, logger)

	ok = true
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory store")
		a.store = memorystore.NewStore()
		return nil
	}
	pg, err := pgstore.NewStore(ctx, pgstore.Config{
		DSN:              a.cfg.Database.DSN,
		MaxConns:         a.cfg.Database.MaxConns,
		MinConns:         a.cfg.Database.MinConns,
		ConnectTimeout:   a.cfg.DatabaseConnectTimeout(),
		StatementTimeout: a.cfg.DatabaseStatementTimeout(),
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = pg
	a.store = pg
	a.logger.Info("postgres store initialized")
	return nil
}

// setupArchive returns nil when archiving is disabled.
func (a *App) setupArchive(ctx context.Context) (regwatch.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("archiving extracted text to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving extracted text locally", zap.String("path", a.cfg.Archive.BaseDir))
		return store, nil
	case "memory":
		return memorystore.NewBlobStore(), nil
	default:
		a.logger.Info("extracted text archive disabled")
		return nil, nil
	}
}

// setupPublisher returns nil when match events are disabled.
func (a *App) setupPublisher(ctx context.Context) (regwatch.Publisher, error) {
	switch a.cfg.Events.Provider {
	case "pubsub":
		p, err := gcppublisher.Dial(ctx, a.cfg.Events.ProjectID, a.cfg.Events.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.pubsub = p
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Events.ProjectID),
			zap.String("topic", a.cfg.Events.Topic),
		)
		return p, nil
	case "memory":
		return memorypublisher.New(), nil
	default:
		a.logger.Info("match events disabled")
		return nil, nil
	}
}

// setupClassifier returns a nil interface when no credential is configured.
func (a *App) setupClassifier() ingest.Classifier {
	gen, err := classifier.NewOpenAIGenerator(classifier.OpenAIConfig{
		APIKey:      a.cfg.Classifier.APIKey,
		BaseURL:     a.cfg.Classifier.BaseURL,
		Model:       a.cfg.Classifier.Model,
		MaxTokens:   a.cfg.Classifier.MaxTokens,
		Temperature: a.cfg.Classifier.Temperature,
		Timeout:     a.cfg.ClassifierTimeout(),
	})
	if err != nil {
		a.logger.Warn("classifier unavailable, new items will be skipped", zap.Error(err))
		return nil
	}
	a.logger.Info("classifier configured", zap.String("model", a.cfg.Classifier.Model))
	return classifier.New(gen, a.cfg.ClassifierTimeout(), a.logger)
}

// Store returns the configured persistence backend.
func (a *App) Store() Store { return a.store }

// Engine returns the matching engine.
func (a *App) Engine() *matching.Engine { return a.engine }

// Coordinator returns the ingestion coordinator.
func (a *App) Coordinator() *ingest.Coordinator { return a.coordinator }

// Resolver returns the cross-reference resolver.
func (a *App) Resolver() *xref.Resolver { return a.resolver }

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// BackfillOptions converts the configured backfill bounds.
func (a *App) BackfillOptions() matching.BackfillOptions {
	return matching.BackfillOptions{
		WindowDays: a.cfg.Matching.BackfillWindowDays,
		PageSize:   a.cfg.Matching.BackfillPageSize,
		MaxPages:   a.cfg.Matching.BackfillMaxPages,
	}
}

// RunIngestion runs one ingestion pass.
func (a *App) RunIngestion(ctx context.Context) (ingest.RunSummary, error) {
	return a.coordinator.RunIngestion(ctx)
}

// MatchUpdate re-evaluates a stored update against ownerID's watch lists, or every owner's when empty.
func (a *App) MatchUpdate(ctx context.Context, updateID, ownerID string) ([]matching.Match, error) {
	return a.engine.MatchUpdateAgainstWatchLists(ctx, updateID, nil, ownerID)
}

// BulkMatchWatchList backfills one watch list.
func (a *App) BulkMatchWatchList(
	ctx context.Context,
	watchListID, ownerID string,
	opts matching.BackfillOptions,
) (matching.BackfillSummary, error) {
	return a.engine.BulkMatchWatchList(ctx, watchListID, ownerID, opts)
}

// Migrate applies the Postgres schema.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		return ErrNoDatabase
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("schema applied")
	return nil
}

// Run serves the HTTP API and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

// Close releases every remote client.
func (a *App) Close() {
	a.closeInfrastructure()
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}
