package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/coffee-export-workflow/internal/console/handler"
	"github.com/xela07ax/coffee-export-workflow/internal/infra"
	"github.com/xela07ax/coffee-export-workflow/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler   *handler.AuthHandler   // /auth/token
	exportHandler *handler.ExportHandler // /v1/exports
	auditHandler  *handler.AuditHandler  // /v1/audit (Logs)
}

// NewConsoleServer инициализирует API-сервер со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	exportH *handler.ExportHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("export-api"),
		cfg:           cfg,
		authValidator: validator,
		authHandler:   authH,
		exportHandler: exportH,
		auditHandler:  auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Жизненный цикл экспортной партии
		r.Route("/v1/exports", func(r chi.Router) {
			r.Get("/", s.exportHandler.List)    // Очереди по статусу (?status=)
			r.Post("/", s.exportHandler.Create) // Новая партия (DRAFT)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.exportHandler.Get)              // Карточка партии
				r.Get("/actions", s.exportHandler.Actions)   // Доступные действия роли
				r.Get("/history", s.exportHandler.History)   // Лента переходов
				r.Get("/progress", s.exportHandler.Progress) // Сводка по этапам

				// Командный путь прикрываем лимитером: решения по партии
				// тянут за собой БД, аудит и Redis Publish
				r.Group(func(r chi.Router) {
					r.Use(rateLimit(s.cfg.Workflow.RateLimitRPS, s.cfg.Workflow.RateLimitBurst))
					r.Post("/transition", s.exportHandler.Transition) // Approve/Reject/Cancel
					r.Post("/resubmit", s.exportHandler.Resubmit)     // Повторная подача после отказа
				})
			})
		})

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
