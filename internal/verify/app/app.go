package app

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

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	httpapi "github.com/aussiebroadwan/verify/internal/verify/http"
	"github.com/aussiebroadwan/verify/internal/verify/service"
	"github.com/aussiebroadwan/verify/internal/verify/store"
	"github.com/aussiebroadwan/verify/internal/verify/store/drivers/sqlite"
	"github.com/aussiebroadwan/verify/pkg/idx"
	"github.com/aussiebroadwan/verify/pkg/jwtx"
	"github.com/aussiebroadwan/verify/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the verification service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     store.Store
	signer jwtx.Signer
	mailer service.Mailer

	// Services
	tokenService          *service.TokenService
	signInService         *service.SignInService
	mfaService            *service.MFAService
	userService           *service.UserService
	contactChannelService *service.ContactChannelService
	housekeepingService   *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "verify-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initSigner(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.seedDefaultTenancy(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initMailer()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("verify service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down verify service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("verify service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSigner loads the Ed25519 signing key from disk, or generates an
// ephemeral one when no key file is configured. Ephemeral keys invalidate
// all access tokens on restart, which is fine for development.
func (app *Application) initSigner() error {
	if app.cfg.SigningKeyFile == "" {
		signer, err := jwtx.NewEphemeralSigner("primary")
		if err != nil {
			return fmt.Errorf("failed to generate signing key: %w", err)
		}
		app.signer = signer
		app.logger.Warn("using ephemeral signing key; access tokens will not survive restarts")
		return nil
	}

	pemKey, err := os.ReadFile(app.cfg.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read signing key file: %w", err)
	}

	signer, err := jwtx.NewSignerEdDSA("primary", pemKey)
	if err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}
	app.signer = signer
	return nil
}

// seedDefaultTenancy ensures the configured default project exists so a
// fresh single-project deployment is usable without an admin step.
func (app *Application) seedDefaultTenancy(ctx context.Context) error {
	_, err := app.db.Tenancies().GetTenancy(ctx, app.cfg.DefaultProjectID, app.cfg.DefaultBranchID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up default tenancy: %w", err)
	}

	tn := domain.Tenancy{
		ID:        idx.New().String(),
		ProjectID: app.cfg.DefaultProjectID,
		BranchID:  app.cfg.DefaultBranchID,
		Config: domain.TenancyConfig{
			SignUpEnabled:    app.cfg.DefaultSignUpEnabled,
			OTPSignInEnabled: true,
			Domains:          app.cfg.DefaultDomains,
			AllowLocalhost:   app.cfg.DefaultAllowLocal,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := app.db.Tenancies().CreateTenancy(ctx, tn); err != nil {
		return fmt.Errorf("failed to seed default tenancy: %w", err)
	}

	app.logger.Info("seeded default tenancy",
		"project_id", tn.ProjectID,
		"branch_id", tn.BranchID,
	)
	return nil
}

func (app *Application) initMailer() {
	if app.cfg.SMTPHost == "" {
		app.mailer = &service.LogMailer{Logger: app.logger}
		app.logger.Warn("no SMTP host configured; emails will be logged instead of sent")
		return
	}

	app.mailer = &service.SMTPMailer{
		Host:     app.cfg.SMTPHost,
		Port:     app.cfg.SMTPPort,
		Username: app.cfg.SMTPUsername,
		Password: app.cfg.SMTPPassword,
		From:     app.cfg.SMTPFrom,
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Signer:     app.signer,
		Store:      app.db,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
	}

	app.mfaService = service.NewMFAService(
		app.db,
		app.tokenService,
		app.cfg.ServiceName,
		app.cfg.MFAAttemptTTL,
	)

	app.signInService = service.NewSignInService(
		app.db,
		app.tokenService,
		app.mfaService,
		app.mailer,
		app.cfg.ServiceName,
		app.cfg.SignInCodeTTL,
	)

	app.userService = &service.UserService{
		Store:  app.db,
		Tokens: app.tokenService,
		MFA:    app.mfaService,
	}

	app.contactChannelService = service.NewContactChannelService(
		app.db,
		app.mailer,
		app.cfg.ServiceName,
		app.cfg.SignInCodeTTL,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	verifier := jwtx.VerifierForSigner(app.signer, app.cfg.Issuer, nil)

	router := httpapi.NewRouter(
		verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.TokenService = app.tokenService
	router.SignInService = app.signInService
	router.MFAService = app.mfaService
	router.UserService = app.userService
	router.ContactChannelService = app.contactChannelService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
