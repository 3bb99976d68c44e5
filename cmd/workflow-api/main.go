package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/coffee-export-workflow/internal/audit"
	"github.com/xela07ax/coffee-export-workflow/internal/console/handler"
	"github.com/xela07ax/coffee-export-workflow/internal/console/server"
	"github.com/xela07ax/coffee-export-workflow/internal/console/service"
	"github.com/xela07ax/coffee-export-workflow/internal/infra"
	"github.com/xela07ax/coffee-export-workflow/internal/infra/auth"
	"github.com/xela07ax/coffee-export-workflow/internal/notify"
	"github.com/xela07ax/coffee-export-workflow/internal/repository/postgres"
	"github.com/xela07ax/coffee-export-workflow/internal/workflow"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("database config", zap.Error(err))
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = cfg.Database.MinConns
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool, err := pgxpool.NewWithConfig(pingCtx, poolCfg)
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	// Проверяем соединение с таймаутом
	if err := pool.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 3. RSA ключи для JWT (RS256)
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key", zap.Error(err))
	}

	// 4. Метрики
	promReg := prometheus.NewRegistry()
	metrics := workflow.NewMetrics(promReg)

	// 5. Слой хранения
	exportRepo := postgres.NewExportRepo(pool)
	userRepo := postgres.NewUserRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	// Журнал аудита: пишем в базу пачками, не тормозя командный путь
	trail := audit.NewTrail(auditRepo, logger,
		cfg.Workflow.AuditBufferSize,
		cfg.Workflow.AuditBatchSize,
		cfg.Workflow.AuditFlushInterval,
	)
	trail.SetGauge(metrics.AuditBufferFill)
	trail.Start()
	defer trail.Stop() // дожимаем буфер в базу перед выходом

	publisher := notify.NewPublisher(rdb, logger)

	// 6. Ядро workflow. Невалидная таблица переходов валит процесс на старте:
	// лучше не подняться, чем маршрутизировать партии по битому графу
	registry := workflow.NewRegistry()
	table := workflow.NewTable()
	engine, err := workflow.NewEngine(exportRepo, registry, table, metrics, logger, publisher, trail)
	if err != nil {
		logger.Fatal("workflow engine", zap.Error(err))
	}
	calculator := workflow.NewCalculator(registry)

	// 7. Сервисы и HTTP-обработчики (Dependency Injection)
	authService := service.NewAuthService(userRepo, privateKey, publicKey, cfg.Auth.TokenTTL)
	authHandler := handler.NewAuthHandler(authService)
	exportHandler := handler.NewExportHandler(engine, calculator)
	auditHandler := handler.NewAuditHandler(auditRepo)

	apiServer := server.NewConsoleServer(cfg, logger, authService, authHandler, exportHandler, auditHandler)

	// Экспортируем метрики для Prometheus на отдельном порту
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("export workflow API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("shutting down...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("export workflow API exited properly")
}
