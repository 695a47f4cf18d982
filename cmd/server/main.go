package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"claimgate/internal/audit"
	auditkafka "claimgate/internal/audit/kafka"
	auditmetrics "claimgate/internal/audit/metrics"
	"claimgate/internal/claim"
	claimhandler "claimgate/internal/claim/handler"
	"claimgate/internal/claim/ledger"
	claimmetrics "claimgate/internal/claim/metrics"
	"claimgate/internal/envelope"
	"claimgate/internal/platform/config"
	"claimgate/internal/platform/httpserver"
	"claimgate/internal/platform/kafka"
	"claimgate/internal/platform/logger"
	"claimgate/internal/platform/metrics"
	"claimgate/internal/platform/postgres"
	platformredis "claimgate/internal/platform/redis"
	"claimgate/internal/portal"
	"claimgate/internal/product"
	producthandler "claimgate/internal/product/handler"
	productmetrics "claimgate/internal/product/metrics"
	"claimgate/internal/pubkey"
	"claimgate/internal/session"
	"claimgate/internal/sessionstore"
	httptransport "claimgate/internal/transport/http"
	"claimgate/internal/upload"
	uploadmetrics "claimgate/internal/upload/metrics"
)

// main wires dependencies and runs the server until SIGINT or SIGTERM. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err := run(cfg, log); err != nil {
		log.Error("claimgate stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	portalClient, err := portal.New(cfg.Portal.BaseURL,
		portal.WithEndpoints(portal.Endpoints{
			PublicKey: cfg.Portal.KeyPath,
			Upload:    cfg.Portal.UploadPath,
			Product:   cfg.Portal.ProductPath,
			Contracts: cfg.Portal.ContractsPath,
			Claim:     cfg.Portal.ClaimPath,
		}),
		portal.WithMetadataField(cfg.Portal.MetadataField),
		portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout}),
	)
	if err != nil {
		return fmt.Errorf("portal client: %w", err)
	}

	health := map[string]httptransport.HealthCheck{}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient.Health
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	var attempts claim.AttemptRecorder = ledger.NewInMemory()
	if db != nil {
		defer db.Close()
		pg := ledger.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("claim ledger schema: %w", err)
		}
		attempts = pg
		health["postgres"] = db.PingContext
	}

	kafkaClient, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	var sink audit.Sink = audit.NewLogSink(log)
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := auditkafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			return fmt.Errorf("audit topic: %w", err)
		}
		sink = auditkafka.NewSink(kafkaClient, cfg.Kafka.Topic)
		health["kafka"] = kafkaClient.Ping
	}
	auditor := audit.NewPublisher(sink,
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New()),
	)

	store, sweeper, closeStore, err := sessionStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	keys := pubkey.New(portalClient,
		pubkey.WithLogger(log),
		pubkey.WithFetchTimeout(cfg.Portal.KeyTimeout),
	)

	var cache product.Cache = product.NewMemoryCache()
	if redisClient != nil {
		cache = product.NewRedisCache(redisClient.Client)
	}
	products := product.NewService(cache, portalClient,
		product.WithTTL(cfg.Product.CacheTTL),
		product.WithFetchTimeout(cfg.Product.FetchTimeout),
		product.WithLogger(log),
		product.WithMetrics(productmetrics.New()),
	)

	claims := claim.NewService(store, envelope.NewSealer(keys), portalUploader(portalClient), portalClient,
		claim.WithLogger(log),
		claim.WithMetrics(claimmetrics.New()),
		claim.WithAttemptRecorder(attempts),
		claim.WithAuditor(auditor),
		claim.WithSuccessCode(cfg.Claim.SuccessCode),
		claim.WithSessionTTL(cfg.Session.TTL),
		claim.WithUploadCategories(cfg.Upload.Categories...),
		claim.WithUploadOptions(
			upload.WithFileTimeout(cfg.Upload.FileTimeout),
			upload.WithMaxFileSize(cfg.Upload.MaxFileSize),
			upload.WithMetrics(uploadmetrics.New()),
		),
	)

	tokens := session.NewTokenService(cfg.Session.SigningKey, cfg.Session.Issuer, cfg.Session.Audience, cfg.Session.TTL)
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metrics:  metrics.New(),
		Sessions: tokens,
		Claim:    claimhandler.New(claims, tokens, log, cfg.Server.MaxUploadBytes),
		Product:  producthandler.New(products, log),
		Health:   health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keys.Warm(gctx)
		return nil
	})
	g.Go(func() error {
		return auditor.Run(gctx)
	})
	if sweeper != nil {
		g.Go(func() error {
			return sweep(gctx, log, sweeper, cfg.Session.SweepInterval)
		})
	}
	g.Go(func() error {
		log.Info("starting claimgate", "addr", cfg.Server.Addr, "session_store", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// portalUploader sends pipeline files through the portal client.
func portalUploader(c *portal.Client) upload.Uploader {
	return upload.UploaderFunc(func(ctx context.Context, metadata []byte, f upload.File) (string, error) {
		return c.Upload(ctx, portal.UploadRequest{
			Metadata:    metadata,
			FileName:    f.Name,
			ContentType: f.ContentType,
			Content:     f.Content,
		})
	})
}

type expirySweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func sessionStore(cfg *config.Config, redisClient *platformredis.Client) (sessionstore.Store, expirySweeper, func(), error) {
	switch cfg.Session.Store {
	case config.StoreRedis:
		return sessionstore.NewRedis(redisClient.Client, cfg.Session.TTL), nil, func() {}, nil
	case config.StoreLevelDB:
		db, err := sessionstore.OpenLevelDB(cfg.Session.LevelDBPath, cfg.Session.TTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open session store: %w", err)
		}
		return db, db, func() { _ = db.Close() }, nil
	default:
		return sessionstore.NewMemory(cfg.Session.TTL), nil, func() {}, nil
	}
}

// sweep drops expired session keys from stores that cannot expire them on their own.
func sweep(ctx context.Context, log *slog.Logger, s expirySweeper, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.WarnContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "session sweep", "removed", n)
			}
		}
	}
}
