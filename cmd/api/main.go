package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/adguardian/internal/application"
	appaudit "github.com/bryanwahyu/adguardian/internal/application/audit"
	"github.com/bryanwahyu/adguardian/internal/config"
	"github.com/bryanwahyu/adguardian/internal/domain/ai"
	domain "github.com/bryanwahyu/adguardian/internal/domain/audit"
	"github.com/bryanwahyu/adguardian/internal/infra/ai/factory"
	mysqlp "github.com/bryanwahyu/adguardian/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/adguardian/internal/infra/db/postgres"
	"github.com/bryanwahyu/adguardian/internal/infra/db/sqlite"
	"github.com/bryanwahyu/adguardian/internal/infra/fetch"
	"github.com/bryanwahyu/adguardian/internal/infra/httpserver"
	"github.com/bryanwahyu/adguardian/internal/infra/report"
	minioStore "github.com/bryanwahyu/adguardian/internal/infra/storage"
	"github.com/bryanwahyu/adguardian/internal/logger"
	"github.com/bryanwahyu/adguardian/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// connect database + repo
	db, history, library, err := openStorage(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Storage.Driver).Fatal("database connect error")
	}
	defer db.Close()

	metrics := middleware.NewMetrics()
	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	sessions := appaudit.NewSessions(cfg.Session.TTL, application.SystemClock{})
	metrics.Gauge("adguardian_sessions_open", "Open audit sessions.", func() float64 {
		return float64(sessions.Len())
	})

	svc := &appaudit.Service{
		HistoryRepo: history,
		LibraryRepo: library,
		Reports:     report.NewRenderer(cfg.Report.FontPath),
		Auditors:    auditorFactory(cfg, log, metrics),
		Defaults: ai.Settings{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
		},
		HistoryCapacity: cfg.History.Capacity,
		Sessions:        sessions,
		Clock:           application.SystemClock{},
		Logger:          log,
	}

	// init minio (optional)
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx, minioStore.Options{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			Bucket:     cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			PresignTTL: cfg.Minio.PresignTTL,
		})
		if err != nil {
			log.WithError(err).Fatal("minio init error")
		}
		svc.Evidence = store
		health["evidence"] = store
	}
	if cfg.Fetch.Enabled {
		svc.Fetcher = fetch.New(fetch.Options{Timeout: cfg.Fetch.Timeout, MaxBytes: cfg.Fetch.MaxBytes})
	}

	handler := httpserver.NewRouter(svc, httpserver.Options{
		APIKeys:           cfg.Auth.Keys,
		RequestsPerMinute: cfg.Auth.RequestsPerMinute,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Metrics:           metrics,
		Health:            health,
		Logger:            log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"storage":  cfg.Storage.Driver,
			"provider": cfg.LLM.Provider,
			"model":    cfg.LLM.Model,
			"auth":     len(cfg.Auth.Keys) > 0,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*sql.DB, domain.HistoryRepository, domain.LibraryRepository, error) {
	switch cfg.Storage.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return db, mysqlp.NewHistoryRepository(db), mysqlp.NewLibraryRepository(db), nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return db, pgp.NewHistoryRepository(db), pgp.NewLibraryRepository(db), nil
	default:
		db, err := sqlite.Connect(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, sqlite.NewHistoryRepository(db), sqlite.NewLibraryRepository(db), nil
	}
}

// auditorFactory builds one Auditor per session. Outbound model calls share one limiter.
func auditorFactory(cfg *config.Config, log logrus.FieldLogger, rec appaudit.Recorder) appaudit.AuditorFactory {
	var limiter *rate.Limiter
	if rpm := cfg.LLM.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60), 1)
	}
	return func(s ai.Settings) (*appaudit.Auditor, error) {
		client, err := factory.New(s, factory.Options{Timeout: cfg.LLM.Timeout, Limiter: limiter})
		if err != nil {
			return nil, err
		}
		return appaudit.NewAuditor(client, appaudit.Options{
			Model:       s.Model,
			Temperature: cfg.LLM.Temperature,
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff: appaudit.Backoff{
				Base:   cfg.Retry.BaseDelay,
				Max:    cfg.Retry.MaxDelay,
				Jitter: cfg.Retry.Jitter,
			},
			Logger:         log.WithField("model", s.Model),
			Recorder:       rec,
			DiscoveryHost:  cfg.Discovery.HostSuffix,
			DiscoveryLimit: cfg.Discovery.Limit,
		}), nil
	}
}
