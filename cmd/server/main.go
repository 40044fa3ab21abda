package main

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	accountdomain "account-identity-core/internal/account/domain"
	"account-identity-core/internal/account/repository"
	"account-identity-core/internal/config"
	"account-identity-core/internal/db"
	"account-identity-core/internal/db/migrate"
	"account-identity-core/internal/events"
	"account-identity-core/internal/events/kafka"
	healthmonitor "account-identity-core/internal/health"
	identitydomain "account-identity-core/internal/identity/domain"
	identityhandler "account-identity-core/internal/identity/handler"
	identityservice "account-identity-core/internal/identity/service"
	"account-identity-core/internal/limiter"
	"account-identity-core/internal/lockout"
	"account-identity-core/internal/logger"
	"account-identity-core/internal/notification"
	"account-identity-core/internal/passwordreset"
	"account-identity-core/internal/policy/engine"
	"account-identity-core/internal/profile"
	profilehandler "account-identity-core/internal/profile/handler"
	"account-identity-core/internal/security"
	"account-identity-core/internal/server"
	sessionhandler "account-identity-core/internal/session/handler"
	sessionservice "account-identity-core/internal/session/service"
	telemetry "account-identity-core/internal/telemetry/otel"
	"account-identity-core/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(logger.Options{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile, MaxAge: 7 * 24 * time.Hour})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure, zlog)
	if err != nil {
		zlog.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		zlog.Fatal("metrics", zap.Error(err))
	}

	accounts, conn, err := openStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("store", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zlog.Fatal("redis url", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
	}

	tokens, err := tokenProvider(cfg, zlog)
	if err != nil {
		zlog.Fatal("signing keys", zap.Error(err))
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	mailer, err := newMailer(cfg, zlog)
	if err != nil {
		zlog.Fatal("mailer", zap.Error(err))
	}

	producer := kafka.NewProducer(cfg.KafkaBrokersList(), cfg.AccountEventsTopic)
	emitter := events.NewAsync(events.Fanout{producer, telemetry.NewEventEmitter(providers.LoggerProvider)}, zlog)

	var (
		resetLimiter  limiter.Limiter
		verifyLimiter limiter.Limiter
		nonces        passwordreset.NonceStore
	)
	if rdb != nil {
		resetLimiter = limiter.NewRedisLimiter(rdb, "account:reset:", cfg.ResetRequestLimit, cfg.ResetRequestWindow())
		verifyLimiter = limiter.NewRedisLimiter(rdb, "account:verify:", cfg.ResetRequestLimit, cfg.ResetRequestWindow())
		nonces = passwordreset.NewRedisNonceStore(rdb, "account:reset-nonce:")
	} else {
		resetLimiter = limiter.NewMemoryLimiter(cfg.ResetRequestLimit, cfg.ResetRequestWindow())
		verifyLimiter = limiter.NewMemoryLimiter(cfg.ResetRequestLimit, cfg.ResetRequestWindow())
		nonces = passwordreset.NewMemoryNonceStore()
	}

	var exchange identitydomain.Exchange
	if cfg.Development() {
		dev := identitydomain.DevExchange{}
		exchange = identitydomain.Registry{
			accountdomain.ProviderGoogle: dev,
			accountdomain.ProviderNaver:  dev,
			accountdomain.ProviderKakao:  dev,
		}
		zlog.Warn("development provider exchange enabled; provider codes are not verified")
	}

	issuer := sessionservice.NewIssuer(accounts, tokens, zlog)
	auth := identityservice.NewAuthService(identityservice.Deps{
		Accounts:               accounts,
		Hasher:                 hasher,
		Verifier:               verification.NewEngine(accounts, mailer, cfg.VerificationCodeTTL(), zlog),
		Lockout:                lockout.NewPolicy(accounts),
		Sessions:               issuer,
		Binder:                 identityservice.NewBinder(accounts, emitter, metrics, zlog),
		Exchange:               exchange,
		Mailer:                 mailer,
		Limiter:                verifyLimiter,
		Emitter:                emitter,
		Metrics:                metrics,
		Log:                    zlog,
		AbortOnDeliveryFailure: cfg.MailAbortOnDeliveryFailure,
	})
	linker := identityservice.NewLinker(accounts, emitter, metrics, zlog)
	reset := passwordreset.NewService(accounts, tokens, hasher, mailer, nonces, resetLimiter, cfg.PasswordResetBaseURL, emitter, metrics, zlog)
	profiles := profile.NewService(accounts, profile.NewDiskImageStore(cfg.UploadDir, cfg.UploadURLPrefix), zlog)

	authz, err := engine.NewOPAEvaluator(ctx, "")
	if err != nil {
		zlog.Fatal("policy", zap.Error(err))
	}

	healthSrv := health.NewServer()
	monitor := &healthmonitor.Monitor{
		Policy:    authz,
		Status:    healthSrv,
		Services:  server.ServiceNames,
		Interval:  cfg.IndexCheckInterval(),
		Threshold: cfg.IndexWarnThreshold,
		Log:       zlog,
	}
	if pg, ok := accounts.(*repository.PostgresRepository); ok {
		monitor.Pinger = conn
		monitor.Indexes = pg
	}
	go func() { _ = monitor.Run(ctx) }()

	s := server.New(server.Deps{
		Account:       identityhandler.NewServer(auth, linker, reset, issuer, authz),
		Session:       sessionhandler.NewServer(issuer, accounts),
		Profile:       profilehandler.NewServer(profiles, authz),
		Authenticator: issuer,
		Health:        healthSrv,
		Telemetry:     true,
		Log:           zlog,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		zlog.Fatal("listen", zap.Error(err))
	}
	defer lis.Close()

	go func() {
		zlog.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := s.Serve(lis); err != nil {
			zlog.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down gRPC server")
	s.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := emitter.Drain(shutdownCtx); err != nil {
		zlog.Warn("events not drained", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		zlog.Warn("kafka close", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("telemetry shutdown", zap.Error(err))
	}
	zlog.Info("gRPC server stopped")
}

// openStore returns the configured account repository. conn is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (repository.Repository, *sqlx.DB, error) {
	if cfg.StoreDriver == "memory" {
		zlog.Warn("using in-memory account store; data is lost on restart")
		return repository.NewMemoryRepository(), nil, nil
	}
	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresRepository(conn), conn, nil
}

func tokenProvider(cfg *config.Config, zlog *zap.Logger) (*security.TokenProvider, error) {
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey == "" {
		zlog.Warn("JWT keys not configured; using an ephemeral signing key")
		priv, pub, err = security.GenerateSigningKey()
	} else {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err == nil {
			pub, err = security.ParsePublicKey(cfg.JWTPublicKey)
		}
	}
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL(), cfg.ResetTokenTTL()), nil
}

func newMailer(cfg *config.Config, zlog *zap.Logger) (notification.Mailer, error) {
	if cfg.SMTPHost == "" {
		zlog.Warn("SMTP not configured; emails are logged, not sent")
		return notification.LogMailer{Log: zlog}, nil
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		TLS:      cfg.SMTPTLS,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, zlog)
}
