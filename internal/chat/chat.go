// Пакет chat — завершение сессии чата при выходе советника.
// Сам чат — внешний сервис; здесь только sign-out по учётным данным из сессии.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Credential — учётные данные чата из сессии.
type Credential struct {
	Token string
	Key   string
}

// Client завершает сессию чата.
// SignOut возвращает управление, когда сессия чата очищена.
type Client interface {
	SignOut(ctx context.Context, cred Credential) error
}

// NewClient возвращает HTTP-клиент чата или Noop, если URL не задан.
func NewClient(signOutURL string, timeout time.Duration, logger *slog.Logger) Client {
	if signOutURL == "" {
		return Noop{logger: logger}
	}
	return &HTTPClient{
		signOutURL: signOutURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "chat_client")),
	}
}

// HTTPClient — sign-out через HTTP endpoint чата.
type HTTPClient struct {
	signOutURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// SignOut отправляет POST signOutURL с токеном чата.
func (c *HTTPClient) SignOut(ctx context.Context, cred Credential) error {
	if cred.Token == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"token": cred.Token})
	if err != nil {
		return fmt.Errorf("сериализация sign-out чата: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signOutURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса sign-out чата: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("sign-out чата: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sign-out чата: статус %d", resp.StatusCode)
	}

	c.logger.Debug("Сессия чата завершена")
	return nil
}

// Noop — sign-out без внешнего вызова: учётные данные чата живут
// только в session cookie и исчезают вместе с ним.
type Noop struct {
	logger *slog.Logger
}

// SignOut ничего не делает.
func (n Noop) SignOut(_ context.Context, _ Credential) error {
	if n.logger != nil {
		n.logger.Debug("Sign-out чата: внешний endpoint не настроен")
	}
	return nil
}
