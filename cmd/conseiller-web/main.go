// Точка входа conseiller-web — веб-интерфейс советников Pass Emploi.
// Загружает конфигурацию, создаёт OIDC-клиент Keycloak, менеджер сессий,
// резолвер и guard, клиенты backend API и чата, запускает topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	apihandlers "github.com/bigkaa/conseiller-web/internal/api/handlers"
	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/chat"
	"github.com/bigkaa/conseiller-web/internal/config"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/server"
	"github.com/bigkaa/conseiller-web/internal/service"
	"github.com/bigkaa/conseiller-web/internal/ui/auth"
	uihandlers "github.com/bigkaa/conseiller-web/internal/ui/handlers"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/conseiller-web/internal/ui/middleware"
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
	logger.Info("conseiller-web запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CW_DEPHEALTH_GROUP") == "" {
		logger.Warn("CW_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Session Manager — шифрование session и state cookies (AES-256-GCM)
	sessionMgr, err := auth.NewSessionManager(cfg.SessionSecret, cfg.SecureCookies())
	if err != nil {
		logger.Error("Ошибка создания Session Manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("CW_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	// 4. OIDC-клиент Keycloak (Authorization Code + PKCE, refresh, logout)
	oidcClient := auth.NewOIDCClient(auth.OIDCConfig{
		KeycloakURL:        cfg.KeycloakURL,
		BrowserKeycloakURL: cfg.KeycloakBrowserURL,
		Realm:              cfg.KeycloakRealm,
		ClientID:           cfg.OIDCClientID,
		ClientSecret:       cfg.OIDCClientSecret,
		Issuer:             cfg.JWTIssuer,
		JWKSURL:            cfg.JWTJWKSURL,
		Timeout:            cfg.OIDCTimeout,
	})

	// 5. Проверка access token через JWKS (фоновое обновление ключей)
	claimsVerifier, err := auth.NewClaimsVerifier(
		cfg.JWTJWKSURL,
		nil,
		cfg.JWTIssuer,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации JWKS", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
		slog.String("jwks_url", cfg.JWTJWKSURL),
	)

	// Структуры без чата
	roles.SetChatExcluded(cfg.ChatExcludedStructures)

	// 6. Резолвер сессии и guard
	resolver := auth.NewResolver(sessionMgr, oidcClient, cfg.SessionRefreshLeeway, logger)
	guard := auth.NewGuard(resolver)

	// 7. Клиенты backend API и чата
	apiClient := apiclient.New(cfg.APIBaseURL, cfg.APIHealthPath, cfg.APITimeout, nil, logger)
	chatClient := chat.NewClient(cfg.ChatSignOutURL, cfg.APITimeout, logger)

	// 8. Каталоги переводов
	bundle := i18n.NewBundle(logger)
	if err := i18n.LoadFromEmbedFS(bundle, logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. topologymetrics — мониторинг Keycloak и backend API
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "conseiller-web",
		Group:           cfg.DephealthGroup,
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		APIHealthURL:    apiClient.HealthURL(),
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации topologymetrics", slog.String("error", err.Error()))
		// Не фатальная ошибка — сервис может работать без мониторинга зависимостей
	} else {
		if startErr := dephealthSvc.Start(context.Background()); startErr != nil {
			logger.Error("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Обработчики
	components := server.Components{
		AuthHandler: uihandlers.NewAuthHandler(
			oidcClient, claimsVerifier, sessionMgr, guard,
			apiClient, chatClient,
			uihandlers.DefaultProviders,
			cfg.PublicURL,
			logger,
		),
		PagesHandler:      uihandlers.NewPagesHandler(apiClient, logger),
		SessionAPIHandler: uihandlers.NewSessionAPIHandler(resolver, sessionMgr, logger),
		HealthHandler: apihandlers.NewHealthHandler(
			auth.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.OIDCTimeout),
			apiClient,
		),
		AuthMiddleware: uimiddleware.NewUIAuth(guard, sessionMgr, logger),
		Bundle:         bundle,
	}

	logger.Info("Интерфейс советника инициализирован",
		slog.String("oidc_client_id", cfg.OIDCClientID),
		slog.Bool("secure_cookie", cfg.SecureCookies()),
	)

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, components)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("conseiller-web остановлен")
}
