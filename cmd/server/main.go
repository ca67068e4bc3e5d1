package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	accountrepo "identity-core/backend/internal/account/repository"
	"identity-core/backend/internal/audit"
	auditrepo "identity-core/backend/internal/audit/repository"
	"identity-core/backend/internal/config"
	"identity-core/backend/internal/db"
	"identity-core/backend/internal/devotp"
	devotphandler "identity-core/backend/internal/devotp/handler"
	"identity-core/backend/internal/federation"
	"identity-core/backend/internal/health"
	identityhandler "identity-core/backend/internal/identity/handler"
	"identity-core/backend/internal/identity/service"
	"identity-core/backend/internal/notify"
	"identity-core/backend/internal/notify/sms"
	"identity-core/backend/internal/otp"
	otprepo "identity-core/backend/internal/otp/repository"
	"identity-core/backend/internal/platform/lock"
	"identity-core/backend/internal/platform/logging"
	"identity-core/backend/internal/security"
	"identity-core/backend/internal/server"
	"identity-core/backend/internal/server/middleware"
	telemetryotel "identity-core/backend/internal/telemetry/otel"
)

const (
	healthInterval  = 15 * time.Second
	shutdownTimeout = 15 * time.Second
	devOTPRetention = 30 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	base := logging.New(cfg.Env)
	log := slog.New(telemetryotel.NewSlogHandler(base.Handler(), providers.LoggerProvider))
	slog.SetDefault(log)

	checker := health.NewChecker(log)

	st, err := openStores(ctx, cfg, checker)
	if err != nil {
		return err
	}
	defer st.close()

	locker, closeLocker, err := newLocker(ctx, cfg, checker)
	if err != nil {
		return err
	}
	defer closeLocker()

	email, smsNotifier, devHandler, closeEmail, err := newNotifiers(cfg, log)
	if err != nil {
		return err
	}
	defer closeEmail()
	dispatcher := notify.NewDispatcher(email, smsNotifier, cfg.NotifyCallTimeout(), log)

	tokens, err := security.NewTokenProviderFromConfig(security.TokenConfig{
		PrivateKey: cfg.JWTPrivateKey,
		PublicKey:  cfg.JWTPublicKey,
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}

	verifiers, err := newVerifiers(cfg)
	if err != nil {
		return err
	}
	log.Info("identity providers configured", "providers", verifiers.Names())

	auth := service.NewAuthService(
		st.accounts,
		otp.NewEngine(st.codes, otp.ExpiryPolicy{Email: cfg.EmailOTPTTL(), Phone: cfg.PhoneOTPTTL()}),
		security.NewHasher(cfg.BcryptCost),
		tokens,
		verifiers,
		dispatcher,
		locker,
		service.WithMailFrom(cfg.MailFrom),
		service.WithAuditLogger(audit.NewLogger(st.audit, middleware.ClientIPFromContext, log)),
		service.WithLogger(log),
	)

	router := server.NewRouter(server.Deps{
		Identity: identityhandler.NewHandler(auth, log),
		Tokens:   tokens,
		Health:   checker,
		DevOTP:   devHandler,
		Log:      log,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := server.NewGRPCServer(checker)

	go checker.Run(ctx, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			log.Info("grpc health server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error("server failed", "error", err)
	}

	log.Info("shutting down...")
	checker.Shutdown()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(sctx); serr != nil {
		log.Warn("http shutdown", "error", serr)
	}
	grpcServer.GracefulStop()
	dispatcher.Drain(sctx)
	log.Info("server stopped")
	return err
}

type stores struct {
	accounts service.AccountRepo
	codes    otprepo.Repository
	audit    auditrepo.Repository
	conn     *sql.DB
}

func (s *stores) close() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// openStores uses Postgres when DATABASE_URL is set and in-memory stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, checker *health.Checker) (*stores, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set; using in-memory stores")
		return &stores{
			accounts: accountrepo.NewMemoryRepository(),
			codes:    otprepo.NewMemoryRepository(),
			audit:    auditrepo.NewMemoryRepository(),
		}, nil
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	checker.Add("postgres", health.PingCheck(conn))
	return &stores{
		accounts: accountrepo.NewPostgresRepository(conn),
		codes:    otprepo.NewPostgresRepository(conn),
		audit:    auditrepo.NewPostgresRepository(conn),
		conn:     conn,
	}, nil
}

func newLocker(ctx context.Context, cfg *config.Config, checker *health.Checker) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	checker.Add("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return lock.NewRedisLocker(client, 0), func() { _ = client.Close() }, nil
}

// newNotifiers picks the email and SMS transports. In dev OTP mode every message is also captured
// and served by the dev handler.
func newNotifiers(cfg *config.Config, log *slog.Logger) (notify.EmailNotifier, notify.SMSNotifier, *devotphandler.Handler, func(), error) {
	closeEmail := func() {}
	var email notify.EmailNotifier = notify.LogNotifier{Logger: log}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		k, err := notify.NewKafkaEmailNotifier(brokers, cfg.NotifyKafkaTopic)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		email = k
		closeEmail = func() { _ = k.Close() }
	}
	if cfg.NotifyEmailRetries > 0 {
		email = notify.WithRetry(email, cfg.NotifyEmailRetries)
	}

	var smsNotifier notify.SMSNotifier
	if cfg.SMSLocalAPIKey != "" {
		smsNotifier = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}

	if !cfg.IsDevOTP() {
		if smsNotifier == nil {
			smsNotifier = notify.LogNotifier{Logger: log}
		}
		return email, smsNotifier, nil, closeEmail, nil
	}
	log.Warn("dev OTP mode enabled; codes are served by GET " + identityhandler.PathPrefix + "/dev/otp")
	store := devotp.NewMemoryStore(devOTPRetention)
	n := devotp.NewNotifier(store, email, smsNotifier)
	return n, n, devotphandler.NewHandler(store), closeEmail, nil
}

func newVerifiers(cfg *config.Config) (federation.Registry, error) {
	client := federation.NewHTTPClient(cfg.ProviderCallTimeout())
	reg := federation.Registry{}
	if cfg.GoogleClientID != "" {
		v, err := federation.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleCertsURL, client)
		if err != nil {
			return nil, err
		}
		reg[federation.ProviderGoogle] = v
	}
	if cfg.FacebookClientID != "" {
		v, err := federation.NewFacebookVerifier(cfg.FacebookClientID, cfg.FacebookClientSecret, cfg.FacebookRedirectURI, client)
		if err != nil {
			return nil, err
		}
		reg[federation.ProviderFacebook] = v
	}
	if cfg.LinkedInClientID != "" {
		v, err := federation.NewLinkedInVerifier(cfg.LinkedInClientID, cfg.LinkedInClientSecret, cfg.LinkedInRedirectURI, client)
		if err != nil {
			return nil, err
		}
		reg[federation.ProviderLinkedIn] = v
	}
	return reg, nil
}
