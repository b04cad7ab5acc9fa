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

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"licensekit/internal/cache"
	"licensekit/internal/client"
	"licensekit/internal/config"
	"licensekit/internal/infrastructure"
	"licensekit/internal/license"
	"licensekit/internal/services"
	"licensekit/internal/store"
	transporthttp "licensekit/internal/transport/http"
	"licensekit/internal/updater"
)

// Application wires the daemon together: configuration, logging, metrics,
// the license manager, the update checker, and the HTTP server.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Manager *license.Manager
	Gate    *updater.Gate

	cache     *cache.Cache
	checker   *updater.Checker
	providers *infrastructure.OTelProviders
}

// NewApplication builds the daemon from configuration
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(cfg.Update.CurrentVersion, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	st, err := store.New(cfg.Paths.StoreFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	installID, err := ensureInstallID(st)
	if err != nil {
		return nil, fmt.Errorf("failed to establish install id: %w", err)
	}

	resultCache := cache.New()

	apiClient := client.New(client.Options{
		BaseURL:     cfg.License.APIBase(),
		ProductSlug: cfg.License.ProductSlug,
		SiteURL:     cfg.License.SiteURL,
		InstallID:   installID,
		Timeout:     cfg.License.RequestTimeout,
		FailureTTL:  cfg.License.FailureTTL,
		Logger:      logger,
	}, resultCache)

	manager := license.NewManager(license.ManagerOptions{
		Client:      apiClient,
		Store:       st,
		Cache:       resultCache,
		CacheTTL:    cfg.License.CacheTTL,
		ProductName: cfg.License.ProductName,
		Logger:      logger,
	})

	metrics, err := license.NewMetrics(providers.Meter)
	if err != nil {
		logger.Warn("license metrics unavailable", slog.String("error", err.Error()))
	} else {
		manager.SetMetrics(metrics)
	}

	gate := updater.NewGate(updater.GateOptions{
		Client:         apiClient,
		State:          manager,
		Cache:          resultCache,
		CacheTTL:       cfg.Update.CacheTTL,
		CurrentVersion: cfg.Update.CurrentVersion,
		ProductName:    cfg.License.ProductName,
		Logger:         logger,
	})

	service := services.NewLicenseService(manager, gate, logger)

	rateLimit := rate.Inf
	burst := 0
	if cfg.Server.RateLimit.Enabled {
		rateLimit = rate.Limit(cfg.Server.RateLimit.RPS)
		burst = cfg.Server.RateLimit.Burst
	}

	router := transporthttp.NewRouter(transporthttp.RouterOptions{
		Service:        service,
		Logger:         logger,
		MetricsHandler: providers.PrometheusHTTP,
		Version:        cfg.Update.CurrentVersion,
		RequestTimeout: cfg.Server.WriteTimeout,
		RateLimit:      rateLimit,
		RateBurst:      burst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	checker := updater.NewChecker(gate, cfg.Update.CheckInterval, func(d *updater.Descriptor) {
		logger.Info("update available",
			slog.String("new_version", d.NewVersion),
			slog.String("package", d.Package),
		)
	}, logger)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Server:    server,
		Manager:   manager,
		Gate:      gate,
		cache:     resultCache,
		checker:   checker,
		providers: providers,
	}, nil
}

// Run starts the daemon and blocks until shutdown
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A changed host version means cached answers may describe the
	// previous install.
	if err := a.Manager.EnsureHostVersion(ctx, a.Config.Update.CurrentVersion); err != nil {
		a.Logger.Warn("host version check failed", slog.String("error", err.Error()))
	}

	if a.Config.Update.CheckInterval > 0 {
		a.checker.Start(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		a.Logger.Info("license daemon listening",
			slog.String("addr", a.Server.Addr),
			slog.String("version", a.Config.Update.CurrentVersion),
		)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.checker.Stop()
	a.cache.Stop()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if a.providers != nil {
		if err := a.providers.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}

	a.Logger.Info("license daemon stopped")
	return nil
}

// ensureInstallID returns the persisted installation id, creating one on
// first run. The id identifies this install to the licensing API across
// restarts.
func ensureInstallID(st *store.Store) (string, error) {
	id, ok, err := st.GetString(store.KeyInstallID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := st.Put(store.KeyInstallID, id); err != nil {
		return "", err
	}
	return id, nil
}
