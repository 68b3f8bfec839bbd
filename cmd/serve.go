package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	// Drivers
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	// Instrumentation
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Interne
	"github.com/jupiterclapton/cenackle/services/feed-engine/config"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/primary/events"
	grpc_adapter "github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/primary/grpc"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/primary/rest"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/secondary/cache"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/secondary/identity"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/secondary/ratelimit"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve feeds over HTTP, gRPC and NATS",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogger(cfg)
	slog.Info("🚀 Starting Feed Engine", "env", cfg.Env, "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// 2. Télémétrie (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Postgres, réplique en lecture (Driven Adapter)
	dbConfig, err := pgxpool.ParseConfig(cfg.ReadURL())
	if err != nil {
		return fmt.Errorf("parse db url: %w", err)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("create db pool: %w", err)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	slog.Info("✅ Connected to Postgres (read replica)")

	repo := repository.NewPostgresRepo(dbPool, cfg.ExploreWindow)

	// 4. Relations : Postgres par défaut, graphe Neo4j en option
	var relations ports.RelationReader = repo
	if cfg.RelationBackend == "neo4j" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			return fmt.Errorf("create neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())

		verifyCtx, verifyCancel := context.WithTimeout(ctx, 5*time.Second)
		err = driver.VerifyConnectivity(verifyCtx)
		verifyCancel()
		if err != nil {
			return fmt.Errorf("connect neo4j: %w", err)
		}
		slog.Info("✅ Connected to Neo4j")
		relations = repository.NewNeo4jRelations(driver)
	}

	// 5. Infrastructure: Redis (optionnel) pour le cache et le rate limit
	var (
		feedCache ports.FeedCache
		limiter   ports.RateLimiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			return fmt.Errorf("instrument redis: %w", err)
		}
		defer rdb.Close()

		// Redis absent au démarrage : on démarre quand même, cache et governor sont fail-open
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("⚠️ Redis unreachable, cache and rate limit degraded", "error", err)
		} else {
			slog.Info("✅ Connected to Redis")
		}

		feedCache = cache.NewRedisFeedCache(rdb)
		limiter = services.NewFixedWindowLimiter(ratelimit.NewRedisCounter(rdb), "feed", int64(cfg.RateLimitMax), cfg.RateLimitWindow)
	} else {
		slog.Info("Redis disabled, using in-process rate limiter and no cache")
		limiter = ratelimit.NewTokenBucket(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	// 6. Identité
	resolver, err := initIdentity(cfg)
	if err != nil {
		return err
	}

	// 7. Initialisation du Core
	feedService := services.NewFeedService(
		repo,
		relations,
		repo,
		services.NewCacheGateway(feedCache, cfg.CacheTTL, cfg.CacheTimeout),
		services.NewGovernor(limiter, cfg.CacheTimeout),
		services.Options{
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			StoreTimeout:    cfg.StoreTimeout,
		},
	)

	// 8. NATS request/reply (Driving Adapter, optionnel)
	var nc *nats.Conn
	if cfg.NatsUrl != "" {
		nc, err = nats.Connect(cfg.NatsUrl)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		handler := events.NewEventHandler(feedService, cfg.StoreTimeout+time.Second)
		if _, err := handler.Subscribe(nc, cfg.NatsSubj, cfg.NatsQueue); err != nil {
			return fmt.Errorf("subscribe %s: %w", cfg.NatsSubj, err)
		}
		slog.Info("👂 Listening for feed requests (NATS)", "subject", cfg.NatsSubj)
	}

	// 9. Serveur gRPC (Driving Adapter)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	grpc_adapter.NewServer(feedService, resolver).Register(grpcServer)

	// Health Check & Reflection
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpc_adapter.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("📡 Feed Engine gRPC listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// 10. Serveur HTTP (Driving Adapter)
	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           rest.NewHandler(feedService, resolver).Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.StoreTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("📡 Feed Engine HTTP listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-errCh:
		slog.Error("Server error", "error", runErr)
	}
	slog.Info("🛑 Shutting down server...")

	healthServer.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	if nc != nil {
		_ = nc.Drain()
	}

	slog.Info("👋 Server exited")
	return runErr
}

// --- Helpers ---

func initIdentity(cfg *config.Config) (ports.IdentityResolver, error) {
	pem, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		if cfg.Env == "prod" {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		slog.Warn("⚠️ No JWT public key, every caller is anonymous", "path", cfg.JWTPublicKeyPath, "error", err)
		return identity.Anonymous{}, nil
	}

	resolver, err := identity.NewJWTResolver(pem, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return resolver, nil
}

func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
