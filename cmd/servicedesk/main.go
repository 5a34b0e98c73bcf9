// Точка входа Service Desk — движок жизненного цикла заявок и снимков SLA.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает topologymetrics
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/servicedesk/internal/api/handlers"
	"github.com/bigkaa/servicedesk/internal/api/middleware"
	"github.com/bigkaa/servicedesk/internal/api/openapi"
	"github.com/bigkaa/servicedesk/internal/audit"
	"github.com/bigkaa/servicedesk/internal/config"
	"github.com/bigkaa/servicedesk/internal/database"
	"github.com/bigkaa/servicedesk/internal/repository"
	"github.com/bigkaa/servicedesk/internal/server"
	"github.com/bigkaa/servicedesk/internal/service"
	"github.com/bigkaa/servicedesk/internal/validation"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Service Desk запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool).
	// ctx отменяется по SIGINT/SIGTERM и останавливает HTTP-сервер.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := database.SQLDB(pool)
	defer pgDB.Close()

	// 5. Repositories
	repos := repository.NewRepos(pool)
	txRunner := repository.NewTxRunner(pool)

	// 6. Services
	requestSvc := service.NewRequestService(
		txRunner,
		repos,
		validation.New(cfg.RegexCacheSize),
		service.RequestOptions{
			CodePrefix:       cfg.RequestCodePrefix,
			PageSizeDefault:  cfg.PageSizeDefault,
			PageSizeMax:      cfg.PageSizeMax,
			DeleteAllowOwner: cfg.DeleteAllowOwner,
		},
		logger,
	)
	auditSvc := service.NewAuditService(audit.NewRecorder(repos.Audit, logger), logger)
	roleSvc := service.NewRoleOverrideService(txRunner, repos.RoleOverrides, logger)

	// 7. JWT middleware (JWKS Identity Provider + role overrides из БД)
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthParams{
		JWKSURL:           cfg.JWTJWKSURL,
		CACertPath:        cfg.CACertPath,
		Issuer:            cfg.JWTIssuer,
		AdminGroups:       cfg.RoleAdminGroups,
		ClientTimeout:     cfg.JWKSClientTimeout,
		RefreshInterval:   cfg.JWKSRefreshInterval,
		Leeway:            cfg.JWTLeeway,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, roleSvc, logger)
	if err != nil {
		logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 8. Health checkers
	idpChecker, err := middleware.NewIdPReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания IdP readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), idpChecker)

	// 9. OpenAPI документ и API handler
	apiDoc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	apiDocJSON, err := openapi.JSON(apiDoc)
	if err != nil {
		logger.Error("Ошибка сериализации OpenAPI документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.NewDocsHandler(apiDocJSON),
		requestSvc, auditSvc, roleSvc, logger)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "servicedesk",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Service Desk остановлен")
}
