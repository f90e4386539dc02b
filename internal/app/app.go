package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driverpulse/sentiment-server/internal/aggregate"
	"github.com/driverpulse/sentiment-server/internal/alert"
	"github.com/driverpulse/sentiment-server/internal/config"
	"github.com/driverpulse/sentiment-server/internal/httpapi"
	"github.com/driverpulse/sentiment-server/internal/idempotency"
	"github.com/driverpulse/sentiment-server/internal/ingest"
	"github.com/driverpulse/sentiment-server/internal/lexicon"
	"github.com/driverpulse/sentiment-server/internal/repository"
	"github.com/driverpulse/sentiment-server/internal/sentiment"
	"github.com/driverpulse/sentiment-server/internal/service"
	"github.com/driverpulse/sentiment-server/internal/store"
	"github.com/driverpulse/sentiment-server/internal/transport/natsmq"
	"github.com/driverpulse/sentiment-server/pkg/cache"
	dbbuilder "github.com/driverpulse/sentiment-server/pkg/database"

	"go.uber.org/zap"
)

type App struct {
	logger     *zap.Logger
	dbPool     *sql.DB
	cache      *cache.Cache
	mq         *natsmq.Client
	loop       *ingest.Loop
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbPool, err := dbbuilder.New(ctx,
		dbbuilder.WithDriver(cfg.DBDriver),
		dbbuilder.WithDataSource(cfg.DBPath),
	)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	logger.Info("Database pool initialized", zap.String("path", cfg.DBPath))

	recordRepo := repository.NewFeedbackRecordRepository(dbPool)
	if err := recordRepo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	cacheClient, err := cache.New(ctx,
		cache.WithAddress(cfg.RedisAddr),
		cache.WithPassword(cfg.RedisPassword),
		cache.WithDB(cfg.RedisDB),
	)
	if err != nil {
		return nil, fmt.Errorf("cache init failed: %w", err)
	}
	logger.Info("Cache client initialized", zap.String("addr", cfg.RedisAddr))

	mq, err := natsmq.Connect(ctx, logger,
		natsmq.WithURL(cfg.NATSURL),
		natsmq.WithStream(cfg.StreamName, cfg.Subject),
		natsmq.WithDLQSubject(cfg.DLQSubject),
		natsmq.WithAlertSubject(cfg.AlertSubject),
		natsmq.WithConsumerName(cfg.ConsumerName),
		natsmq.WithAckWait(cfg.AckWait),
		natsmq.WithMaxDeliveries(cfg.MaxDeliveries),
	)
	if err != nil {
		return nil, fmt.Errorf("message queue init failed: %w", err)
	}

	source, err := mq.NewSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("consumer init failed: %w", err)
	}

	lex, err := loadLexicon(cfg)
	if err != nil {
		return nil, fmt.Errorf("lexicon init failed: %w", err)
	}

	analyzer := sentiment.New(lex, logger,
		sentiment.WithNegationWindow(cfg.NegationWindow),
		sentiment.WithNegationDampening(cfg.NegationDampening),
		sentiment.WithNeutralRatio(cfg.NeutralRatio),
		sentiment.WithValueBounds(cfg.ScorerMin, cfg.ScorerMax),
	)

	scoreStore := store.NewScoreStore(cacheClient)
	lockStore := store.NewAlertLockStore(cacheClient)
	markerStore := store.NewMarkerStore(cacheClient)

	aggregator := aggregate.New(scoreStore, logger,
		aggregate.WithAlpha(cfg.EMAAlpha),
		aggregate.WithSeedAverage(cfg.SeedAverage),
		aggregate.WithDomain(cfg.ScoreDomainMin, cfg.ScoreDomainMax),
		aggregate.WithScorerRange(cfg.ScorerMin, cfg.ScorerMax),
	)

	decider := alert.New(cfg.AlertThreshold, lockStore, aggregator, mq.NewAlertNotifier(logger), logger,
		alert.WithCooldown(cfg.AlertCooldown),
	)

	guard := idempotency.New(markerStore, logger,
		idempotency.WithLease(cfg.IdempotencyLease),
		idempotency.WithRetention(cfg.IdempotencyRetention),
	)

	loop := ingest.New(source, guard, analyzer, aggregator, decider, recordRepo, mq.NewDeadLetterPublisher(), logger,
		ingest.WithWorkers(cfg.Workers),
		ingest.WithFetchBatch(cfg.FetchBatch),
		ingest.WithEventTimeout(cfg.EventTimeout),
		ingest.WithRetry(cfg.RetryAttempts, cfg.RetryBackoff),
		ingest.WithMaxDeliveries(uint64(cfg.MaxDeliveries)),
	)

	queryService := service.NewQueryService(scoreStore, lockStore, recordRepo, logger)
	httpServer := httpapi.New(cfg.HTTPAddr, queryService, cacheClient, logger)

	return &App{
		logger:     logger,
		dbPool:     dbPool,
		cache:      cacheClient,
		mq:         mq,
		loop:       loop,
		httpServer: httpServer,
	}, nil
}

func loadLexicon(cfg *config.Config) (*lexicon.Lexicon, error) {
	fuzzy := lexicon.WithFuzzyTolerance(cfg.FuzzyMaxDistance, cfg.FuzzyMinLength)
	if cfg.LexiconPath != "" {
		return lexicon.LoadFile(cfg.LexiconPath, fuzzy)
	}
	return lexicon.Default(fuzzy), nil
}

// Run starts the pipeline and the query API and blocks until a shutdown
// signal is received.
func (a *App) Run() error {
	a.logger.Info("application starting")

	a.httpServer.Start()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- a.loop.Run(loopCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("application shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop pulling new events; in-flight events finish their pipeline.
	stopLoop()
	select {
	case <-loopDone:
		a.logger.Info("ingestion loop drained")
	case <-ctx.Done():
		a.logger.Warn("ingestion loop drain timed out")
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", zap.Error(err))
	}
	if err := a.mq.Close(); err != nil {
		a.logger.Error("message queue shutdown error", zap.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("cache shutdown error", zap.Error(err))
	}
	if err := a.dbPool.Close(); err != nil {
		a.logger.Error("database shutdown error", zap.Error(err))
	}

	a.logger.Info("graceful shutdown completed")
	_ = a.logger.Sync()
	return nil
}
