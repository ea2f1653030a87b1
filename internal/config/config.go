// Пакет config — загрузка и валидация конфигурации conseiller-web
// из переменных окружения (опционально — из .env файла).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bigkaa/conseiller-web/internal/domain/roles"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации conseiller-web.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный URL приложения (scheme://host). Пустой — вычисляется из запроса.
	PublicURL string

	// --- Keycloak (OIDC) ---

	// URL Keycloak для server-to-server запросов (token endpoint, JWKS)
	KeycloakURL string
	// URL Keycloak для browser redirects (authorize, logout). По умолчанию = KeycloakURL.
	KeycloakBrowserURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// OIDC Client ID (confidential client)
	OIDCClientID string
	// OIDC Client Secret
	OIDCClientSecret string
	// Таймаут запросов к Keycloak (обмен code, refresh)
	OIDCTimeout time.Duration

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakBrowserURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Сессия ---

	// Ключ шифрования session cookie (base64 32 bytes или произвольная строка)
	SessionSecret string
	// Запас до истечения access token, при котором выполняется refresh
	SessionRefreshLeeway time.Duration

	// --- Backend API ---

	// Базовый URL backend REST API
	APIBaseURL string
	// Таймаут запросов к backend API
	APITimeout time.Duration
	// Путь health endpoint backend API (для readiness и topologymetrics)
	APIHealthPath string

	// --- Чат ---

	// URL завершения сессии чата (опционально, пустой — sign-out только локальный)
	ChatSignOutURL string
	// Структуры, для которых чат отключён
	ChatExcludedStructures []roles.Structure

	// --- UI ---

	// Язык интерфейса по умолчанию (fr, en)
	DefaultLang string

	// --- topologymetrics ---

	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если задана CW_ENV_FILE — переменные предварительно читаются из файла
// (уже выставленные переменные окружения не перезаписываются).
func Load() (*Config, error) {
	if envFile := os.Getenv("CW_ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("CW_ENV_FILE: ошибка чтения %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CW_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("CW_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("CW_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CW_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CW_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CW_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CW_LOG_LEVEL: %w", err)
	}

	// CW_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CW_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CW_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CW_PUBLIC_URL — опционально
	cfg.PublicURL = strings.TrimRight(getEnvDefault("CW_PUBLIC_URL", ""), "/")

	// --- Keycloak ---

	// CW_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("CW_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// CW_KEYCLOAK_BROWSER_URL — по умолчанию совпадает с CW_KEYCLOAK_URL
	cfg.KeycloakBrowserURL = strings.TrimRight(getEnvDefault("CW_KEYCLOAK_BROWSER_URL", cfg.KeycloakURL), "/")

	// CW_KEYCLOAK_REALM — realm (по умолчанию pass-emploi)
	cfg.KeycloakRealm = getEnvDefault("CW_KEYCLOAK_REALM", "pass-emploi")

	// CW_OIDC_CLIENT_ID — обязательный
	cfg.OIDCClientID, err = getEnvRequired("CW_OIDC_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// CW_OIDC_CLIENT_SECRET — обязательный
	cfg.OIDCClientSecret, err = getEnvRequired("CW_OIDC_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// CW_OIDC_TIMEOUT — таймаут запросов к Keycloak (по умолчанию 10s)
	cfg.OIDCTimeout, err = getEnvDuration("CW_OIDC_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_OIDC_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// CW_JWT_ISSUER — issuer совпадает с внешним URL Keycloak (frontend URL realm)
	cfg.JWTIssuer = getEnvDefault("CW_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakBrowserURL, cfg.KeycloakRealm))

	// CW_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("CW_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// CW_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("CW_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CW_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// CW_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("CW_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_JWT_LEEWAY: %w", err)
	}

	// --- Сессия ---

	// CW_SESSION_SECRET — опционально (пустой — случайный ключ на время жизни процесса)
	cfg.SessionSecret = getEnvDefault("CW_SESSION_SECRET", "")

	// CW_SESSION_REFRESH_LEEWAY — запас до истечения access token (по умолчанию 30s)
	cfg.SessionRefreshLeeway, err = getEnvDuration("CW_SESSION_REFRESH_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_SESSION_REFRESH_LEEWAY: %w", err)
	}
	if cfg.SessionRefreshLeeway < 0 {
		return nil, fmt.Errorf("CW_SESSION_REFRESH_LEEWAY: отрицательное значение %s", cfg.SessionRefreshLeeway)
	}

	// --- Backend API ---

	// CW_API_BASE_URL — обязательный
	cfg.APIBaseURL, err = getEnvRequired("CW_API_BASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// CW_API_TIMEOUT — таймаут запросов к API (по умолчанию 15s)
	cfg.APITimeout, err = getEnvDuration("CW_API_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_API_TIMEOUT: %w", err)
	}

	// CW_API_HEALTH_PATH — health endpoint API (по умолчанию /health)
	cfg.APIHealthPath = getEnvDefault("CW_API_HEALTH_PATH", "/health")

	// --- Чат ---

	// CW_CHAT_SIGNOUT_URL — опционально
	cfg.ChatSignOutURL = getEnvDefault("CW_CHAT_SIGNOUT_URL", "")

	// CW_CHAT_EXCLUDED_STRUCTURES — структуры без чата через запятую
	// (по умолчанию CONSEIL_DEPT; пустое значение — чат у всех)
	cfg.ChatExcludedStructures = roles.DefaultChatExcluded
	if val, ok := os.LookupEnv("CW_CHAT_EXCLUDED_STRUCTURES"); ok {
		cfg.ChatExcludedStructures = nil
		for _, name := range parseCSV(val) {
			s := roles.Structure(name)
			if !s.IsKnown() {
				return nil, fmt.Errorf("CW_CHAT_EXCLUDED_STRUCTURES: неизвестная структура %q", name)
			}
			cfg.ChatExcludedStructures = append(cfg.ChatExcludedStructures, s)
		}
	}

	// --- UI ---

	// CW_DEFAULT_LANG — язык по умолчанию (fr)
	cfg.DefaultLang = getEnvDefault("CW_DEFAULT_LANG", "fr")
	if cfg.DefaultLang != "fr" && cfg.DefaultLang != "en" {
		return nil, fmt.Errorf("CW_DEFAULT_LANG: недопустимое значение %q, допустимые: fr, en", cfg.DefaultLang)
	}

	// --- topologymetrics ---

	// CW_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CW_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// CW_DEPHEALTH_GROUP — группа в метриках (по умолчанию pass-emploi)
	cfg.DephealthGroup = getEnvDefault("CW_DEPHEALTH_GROUP", "pass-emploi")

	// --- Graceful shutdown ---

	// CW_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CW_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CW_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SecureCookies возвращает true, если приложение обслуживается по HTTPS
// (Secure flag для session и state cookies).
func (c *Config) SecureCookies() bool {
	if c.PublicURL != "" {
		return strings.HasPrefix(c.PublicURL, "https://")
	}
	return strings.HasPrefix(c.KeycloakBrowserURL, "https://")
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseCSV разбивает строку по запятым, отбрасывая пустые элементы.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
