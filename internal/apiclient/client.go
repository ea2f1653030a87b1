// Пакет apiclient — HTTP-клиент backend REST API pass-emploi.
// Каждый запрос авторизуется access token советника из сессии.
// Ответ с не-2xx статусом возвращается как *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody — сколько байт тела ошибки сохраняется в APIError.
const maxErrorBody = 4096

// APIError — не-2xx ответ backend API.
type APIError struct {
	// Status — HTTP-статус ответа.
	Status int
	// Code — машиночитаемый код ошибки (поле code тела), если есть.
	Code string
	// Message — сообщение ошибки (поле message тела) или тело как есть.
	Message string
	// Method, Path — запрос, вызвавший ошибку.
	Method string
	Path   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API %s %s: статус %d (%s): %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API %s %s: статус %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound — ошибка является ответом 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized — backend отверг access token.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden — backend запретил операцию.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// AsAPIError извлекает *APIError из цепочки ошибок.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func hasStatus(err error, status int) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == status
}

// Client — клиент backend API.
type Client struct {
	baseURL    string
	healthPath string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент API.
// httpClient может быть nil — создаётся клиент с timeout.
func New(baseURL, healthPath string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if healthPath == "" {
		healthPath = "/health"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: healthPath,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "api_client")),
	}
}

// Get выполняет GET path и декодирует JSON-ответ в target (target может быть nil).
func (c *Client) Get(ctx context.Context, accessToken, path string, target any) error {
	return c.do(ctx, http.MethodGet, accessToken, path, nil, target)
}

// Post выполняет POST path с JSON-телом body (может быть nil).
func (c *Client) Post(ctx context.Context, accessToken, path string, body, target any) error {
	return c.do(ctx, http.MethodPost, accessToken, path, body, target)
}

// do выполняет запрос к API.
func (c *Client) do(ctx context.Context, method, accessToken, path string, body, target any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("сериализация тела %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации API
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Запрос к API",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, method, path)
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("декодирование ответа %s %s: %w", method, path, err)
	}
	return nil
}

// newAPIError строит APIError из тела ответа ({"code","message"} или текст).
func newAPIError(resp *http.Response, method, path string) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		Status: resp.StatusCode,
		Method: method,
		Path:   path,
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// CheckReady проверяет health endpoint API.
func (c *Client) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Get(ctx, "", c.healthPath, nil); err != nil {
		return "fail", fmt.Sprintf("backend API недоступен: %v", err)
	}
	return "ok", "backend API доступен"
}

// HealthURL возвращает полный URL health endpoint (для topologymetrics).
func (c *Client) HealthURL() string {
	return c.baseURL + c.healthPath
}
