package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flashbill/flashbill/internal"
	"github.com/flashbill/flashbill/internal/email"
	"github.com/flashbill/flashbill/internal/gateway"
	"github.com/flashbill/flashbill/internal/handler"
	"github.com/flashbill/flashbill/internal/handler/webhook"
	"github.com/flashbill/flashbill/internal/jobs"
	"github.com/flashbill/flashbill/internal/middleware"
	"github.com/flashbill/flashbill/internal/pdf"
	"github.com/flashbill/flashbill/internal/postgres"
	"github.com/flashbill/flashbill/internal/router"
	"github.com/flashbill/flashbill/internal/routes"
	"github.com/flashbill/flashbill/internal/service"
	"github.com/flashbill/flashbill/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	defaultOrgID, err := uuid.Parse(cfg.OrgID)
	if err != nil {
		return fmt.Errorf("invalid ORG_ID: %w", err)
	}

	// Initialize error tracking and business metrics
	sentryCleanup, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.SentryDSN,
		Enabled:     cfg.SentryDSN != "",
		Environment: cfg.Env,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer sentryCleanup()
	telemetry.InitBusinessMetrics("flashbill")

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize repositories
	invoiceRepo := postgres.NewInvoiceRepository(pool, logger)
	paymentRepo := postgres.NewPaymentRepository(pool, logger)
	taxRepo := postgres.NewTaxSettingRepository(pool, logger)
	clientRepo := postgres.NewClientRepository(pool, logger)

	// Initialize email delivery
	var sender email.Sender
	switch cfg.Email.Provider {
	case "postmark":
		if cfg.Email.PostmarkAPIKey == "" {
			return fmt.Errorf("POSTMARK_API_KEY must be set when EMAIL_PROVIDER=postmark")
		}
		sender = email.NewPostmarkSender(cfg.Email.PostmarkAPIKey)
		logger.Info("Email delivery via Postmark")
	default:
		sender = email.NewSMTPSender(&email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)
		logger.Info("Email delivery via SMTP", "host", cfg.Email.Host, "port", cfg.Email.Port)
	}

	if cfg.Email.QueueEnabled {
		queue := email.NewQueue(sender, 64, logger)
		queue.Start()
		defer queue.Stop()
		sender = queue
		logger.Info("Email queue enabled")
	}

	mailer, err := email.NewMailer(sender, email.Config{
		FromAddress: cfg.Email.From,
		FromName:    cfg.Email.FromName,
		CompanyName: cfg.Company.Name,
		BaseURL:     cfg.BaseURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}

	// Initialize invoice document renderer
	renderer, err := pdf.NewRenderer(pdf.Company{
		Name:    cfg.Company.Name,
		Address: cfg.Company.Address,
		TaxID:   cfg.Company.TaxID,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize document renderer: %w", err)
	}

	// Initialize card processor. Without a Stripe key guest payments run
	// against the mock processor, which only makes sense in development.
	var cards service.CardProcessor
	var webhookVerifier webhook.SignatureVerifier
	if cfg.Stripe.SecretKey != "" {
		sp := gateway.NewStripeProcessor(cfg.Stripe.SecretKey, logger)
		cards, webhookVerifier = sp, sp
		logger.Info("Stripe card processor initialized")
	} else {
		mp := gateway.NewMockProcessor(logger)
		cards, webhookVerifier = mp, mp
		logger.Warn("STRIPE_SECRET_KEY not set, using mock card processor")
	}

	// Initialize services
	invoiceService := service.NewInvoiceService(invoiceRepo, clientRepo, taxRepo, renderer, mailer, cards, logger)
	paymentService := service.NewPaymentService(paymentRepo, invoiceRepo, mailer, logger)
	taxService := service.NewTaxService(taxRepo, logger)
	clientService := service.NewClientService(clientRepo, logger)

	// Initialize handlers
	validate := handler.NewValidator()
	apiDeps := routes.APIDeps{
		Invoices: handler.NewInvoiceHandler(invoiceService, validate),
		Payments: handler.NewPaymentHandler(paymentService, validate),
		Taxes:    handler.NewTaxHandler(taxService, validate),
		Clients:  handler.NewClientHandler(clientService, validate),
	}
	guestDeps := routes.GuestDeps{
		Guest: handler.NewGuestHandler(invoiceService, validate),
	}
	webhookDeps := routes.WebhookDeps{
		Stripe: webhook.NewStripeHandler(webhookVerifier, invoiceService, webhook.StripeConfig{
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}, logger),
	}

	// Initialize middleware
	metrics := middleware.NewMetrics("flashbill")

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.ContentSecurityPolicy = ""
		securityConfig.HSTSMaxAge = 0
	}

	rateLimiterConfig := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimiterConfig.RequestsPerSecond = cfg.RateLimitRPS
		rateLimiterConfig.BurstSize = int(cfg.RateLimitRPS * 2)
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig)

	chain := []router.Middleware{
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
	}
	if len(cfg.CORSOrigins) > 0 {
		chain = append(chain, router.CORS(cfg.CORSOrigins))
	}
	chain = append(chain,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		rateLimiter.Middleware,
		middleware.WithOrg(middleware.OrgConfig{DefaultOrgID: defaultOrgID}),
		telemetry.SentryMiddleware(func(ctx context.Context) (string, bool) {
			orgID, ok := middleware.GetOrgID(ctx)
			return orgID.String(), ok
		}),
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	r := router.New(chain...)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := pool.Ping(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Register route groups
	routes.RegisterAPIRoutes(r, apiDeps)
	routes.RegisterGuestRoutes(r, guestDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// Start the reminder scheduler for the default org
	scheduler := jobs.NewScheduler(invoiceService, defaultOrgID, jobs.SchedulerConfig{}, logger)
	go scheduler.Start(ctx)

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Server stopped")

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
