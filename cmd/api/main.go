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

	"github.com/go-auth-gate/internal/application/notify"
	"github.com/go-auth-gate/internal/config"
	"github.com/go-auth-gate/internal/infrastructure/dynamo"
	"github.com/go-auth-gate/internal/infrastructure/google"
	jwtinfra "github.com/go-auth-gate/internal/infrastructure/jwt"
	"github.com/go-auth-gate/internal/infrastructure/kafka"
	"github.com/go-auth-gate/internal/infrastructure/smtp"
	"github.com/go-auth-gate/internal/infrastructure/sns"
	"github.com/go-auth-gate/internal/pkg/logger"
	"github.com/go-auth-gate/internal/ratelimit"
	transporthttp "github.com/go-auth-gate/internal/transport/http"
	"github.com/go-auth-gate/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-gate/internal/transport/http/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	notifier, closeNotifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	checks := map[string]handler.Check{}
	var redisClient redis.UniversalClient
	if cfg.Limits.Backend == ratelimit.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisClient = client
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	factory, err := ratelimit.NewFactory(cfg.Limits.Backend, redisClient, cfg.Limits.RedisPrefix)
	if err != nil {
		return err
	}

	proxies, err := appmiddleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	global := appmiddleware.NewGlobalLimiter(rate.Limit(cfg.Limits.GlobalPerSecond), cfg.Limits.GlobalBurst)
	deps := &transporthttp.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		SessionRepo:      dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		VerificationRepo: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.VerificationRequests),
		Notifier:         notifier,
		Signer:           jwtProvider,
		Google:           google.NewVerifier(cfg.GoogleClientID),
		Limits:           transporthttp.NewLimiters(factory, cfg.Limits),
		GlobalLimiter:    global,
		Proxies:          proxies,
		HealthChecks:     checks,
	}
	router := transporthttp.NewRouter(cfg, deps)

	go ratelimit.RunJanitor(ctx, cfg.Limits.JanitorInterval, append(factory.Pruners(), global)...)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "rate_limit_backend", factory.Backend())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// newNotifier publishes to Kafka when brokers are configured and otherwise
// sends mail over SMTP and texts over SNS.
func newNotifier(ctx context.Context, cfg *config.Config, log *slog.Logger) (*notify.Dispatcher, func(), error) {
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewProducer(log, cfg.KafkaBrokers, cfg.KafkaTopic)
		return notify.NewDispatcher(p, p), p.Close, nil
	}
	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, nil, err
	}
	return notify.NewDispatcher(smtp.NewMailer(cfg), sns.NewSender(awsCfg, cfg.AWSEndpointURL)), func() {}, nil
}
