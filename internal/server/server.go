// Пакет server — HTTP-сервер conseiller-web с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	apihandlers "github.com/bigkaa/conseiller-web/internal/api/handlers"
	"github.com/bigkaa/conseiller-web/internal/config"
	uihandlers "github.com/bigkaa/conseiller-web/internal/ui/handlers"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/conseiller-web/internal/ui/middleware"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
	"github.com/bigkaa/conseiller-web/internal/ui/static"
)

// PublicPaths — маршруты, доступные без сессии.
// Страница входа и callback сами решают, что делать с сессией;
// /api/* отвечает JSON-статусами вместо redirect.
var PublicPaths = []string{
	"/login",
	"/logout",
	"/auth/callback",
	"/api",
	"/static",
	"/health",
	"/metrics",
	"/set-language",
}

// Components — обработчики и middleware, из которых собирается маршрутизатор.
type Components struct {
	AuthHandler       *uihandlers.AuthHandler
	PagesHandler      *uihandlers.PagesHandler
	SessionAPIHandler *uihandlers.SessionAPIHandler
	HealthHandler     *apihandlers.HealthHandler
	AuthMiddleware    *uimiddleware.UIAuth
	Bundle            *i18n.Bundle
}

// Server — HTTP-сервер conseiller-web.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, c Components) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, c),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор приложения.
func NewRouter(cfg *config.Config, logger *slog.Logger, c Components) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(uimiddleware.RequestID())
	router.Use(uimiddleware.MetricsMiddleware())
	router.Use(uimiddleware.RequestLogger(logger))
	router.Use(i18n.Middleware(c.Bundle, cfg.DefaultLang))
	router.Use(slots.Middleware)

	// Guard для всех страниц, кроме публичных
	router.Use(uimiddleware.WithExclusions(c.AuthMiddleware.Middleware(), PublicPaths...))

	// --- Health и метрики (Kubernetes, Prometheus) ---
	router.Get("/health/live", c.HealthHandler.HealthLive)
	router.Get("/health/ready", c.HealthHandler.HealthReady)
	router.Get("/metrics", c.HealthHandler.GetMetrics)

	// --- Статика ---
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	// --- Аутентификация ---
	router.Get("/login", c.AuthHandler.HandleLogin)
	router.Get("/login/{provider}", c.AuthHandler.HandleProviderLogin)
	router.Get("/auth/callback", c.AuthHandler.HandleCallback)
	router.Post("/logout", c.AuthHandler.HandleLogout)
	router.Get("/api/auth/federated-logout", c.AuthHandler.HandleFederatedLogout)
	router.Get("/api/auth/session", c.SessionAPIHandler.HandleSession)
	router.Post("/set-language", uihandlers.HandleSetLanguage)

	// --- Страницы за guard ---
	router.Get("/", c.PagesHandler.HandlePortefeuille)
	router.Get("/mes-jeunes/{id}", c.PagesHandler.HandleJeune)
	router.Get("/agenda", c.PagesHandler.HandleAgenda)
	router.Get("/messagerie", c.PagesHandler.HandleMessagerie)
	router.Get("/reaffectation", c.PagesHandler.HandleReaffectation)
	router.NotFound(c.PagesHandler.HandleNotFound)

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
