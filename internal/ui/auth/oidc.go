// oidc.go — OIDC-клиент Keycloak: Authorization Code Flow с PKCE,
// refresh токенов, проверка id_token и federated logout.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrMalformedTokenResponse — token endpoint ответил без обязательных полей.
var ErrMalformedTokenResponse = errors.New("некорректный ответ token endpoint")

// OIDCClient — клиент Keycloak OIDC endpoints (confidential client + PKCE).
type OIDCClient struct {
	// oauth — базовая конфигурация без RedirectURL (он зависит от запроса).
	oauth oauth2.Config
	// logoutURL — endpoint logout Keycloak (browser URL).
	logoutURL string
	// httpClient — HTTP-клиент для server-to-server запросов.
	httpClient *http.Client
	// timeout — таймаут одного обмена с token endpoint.
	timeout time.Duration
	// verifier — проверка подписи и claims id_token.
	verifier *oidc.IDTokenVerifier
}

// OIDCConfig — конфигурация OIDC-клиента.
type OIDCConfig struct {
	// KeycloakURL — URL Keycloak для server-to-server запросов (token, JWKS).
	KeycloakURL string
	// BrowserKeycloakURL — внешний URL Keycloak для browser redirects.
	// Если пустой — используется KeycloakURL.
	BrowserKeycloakURL string
	// Realm — имя realm в Keycloak.
	Realm string
	// ClientID — OIDC Client ID.
	ClientID string
	// ClientSecret — секрет confidential client.
	ClientSecret string
	// Issuer — ожидаемый issuer id_token. Пустой — browser realm URL.
	Issuer string
	// JWKSURL — JWKS для проверки id_token. Пустой — certs endpoint realm.
	JWKSURL string
	// HTTPClient — HTTP-клиент (nil — создаётся новый).
	HTTPClient *http.Client
	// Timeout — таймаут обмена с token endpoint (по умолчанию 10s).
	Timeout time.Duration
}

// NewOIDCClient создаёт OIDC-клиент.
// Backend URL (token, JWKS) и browser URL (authorize, logout) могут различаться:
// backend — внутренний DNS, browser — внешний URL.
func NewOIDCClient(cfg OIDCConfig) *OIDCClient {
	backendOIDCBase := fmt.Sprintf("%s/realms/%s/protocol/openid-connect", cfg.KeycloakURL, cfg.Realm)

	browserKeycloakURL := cfg.BrowserKeycloakURL
	if browserKeycloakURL == "" {
		browserKeycloakURL = cfg.KeycloakURL
	}
	browserRealmURL := fmt.Sprintf("%s/realms/%s", browserKeycloakURL, cfg.Realm)
	browserOIDCBase := browserRealmURL + "/protocol/openid-connect"

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = browserRealmURL
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = backendOIDCBase + "/certs"
	}

	// Ключи id_token загружаются лениво, при первой проверке
	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), jwksURL)

	return &OIDCClient{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  browserOIDCBase + "/auth",
				TokenURL: backendOIDCBase + "/token",
				// Один запрос на обмен: без автоопределения способа аутентификации клиента
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{oidc.ScopeOpenID, "profile", "email"},
		},
		logoutURL:  browserOIDCBase + "/logout",
		httpClient: httpClient,
		timeout:    timeout,
		verifier:   oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: cfg.ClientID}),
	}
}

// AuthorizeURL формирует URL redirect на страницу входа Keycloak.
// verifier — PKCE code_verifier (oauth2.GenerateVerifier), хранится в state cookie.
// idpHint — kc_idp_hint для выбора провайдера идентификации (может быть пустым).
func (c *OIDCClient) AuthorizeURL(redirectURI, state, verifier, idpHint string) string {
	conf := c.withRedirect(redirectURI)
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if idpHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("kc_idp_hint", idpHint))
	}
	return conf.AuthCodeURL(state, opts...)
}

// TokenResponse — токены, выданные Keycloak.
type TokenResponse struct {
	AccessToken  string    //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string    //nolint:gosec // G117: структура токена OAuth2
	IDToken      string    //nolint:gosec // G117: структура токена OAuth2
	Expiry       time.Time // момент истечения access token
}

// ExchangeCode обменивает authorization code на токены.
// redirectURI — тот же, что в authorize URL; codeVerifier — из state cookie.
func (c *OIDCClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	ctx, cancel := c.clientContext(ctx)
	defer cancel()

	conf := c.withRedirect(redirectURI)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("обмен authorization code: %w", err)
	}
	return toTokenResponse(tok)
}

// RefreshTokens выполняет ровно один refresh_token grant.
// Если Keycloak не ротирует refresh token, в ответе остаётся прежний.
func (c *OIDCClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, cancel := c.clientContext(ctx)
	defer cancel()

	// Токен без access token невалиден — TokenSource сразу идёт за новым
	ts := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh токена: %w", err)
	}
	return toTokenResponse(tok)
}

// IDTokenClaims — claims id_token, используемые при входе.
type IDTokenClaims struct {
	Subject           string `json:"sub"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	PreferredUsername string `json:"preferred_username"`
}

// VerifyIDToken проверяет подпись, issuer, audience и срок действия id_token.
func (c *OIDCClient) VerifyIDToken(ctx context.Context, rawIDToken string) (*IDTokenClaims, error) {
	ctx, cancel := c.clientContext(ctx)
	defer cancel()

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("проверка id_token: %w", err)
	}

	var claims IDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("разбор claims id_token: %w", err)
	}
	return &claims, nil
}

// LogoutURL формирует URL federated logout Keycloak.
// idTokenHint — id_token (опционально); postLogoutRedirectURI — куда вернуть пользователя.
func (c *OIDCClient) LogoutURL(idTokenHint, postLogoutRedirectURI string) string {
	params := url.Values{
		"client_id":                {c.oauth.ClientID},
		"post_logout_redirect_uri": {postLogoutRedirectURI},
	}
	if idTokenHint != "" {
		params.Set("id_token_hint", idTokenHint)
	}
	return c.logoutURL + "?" + params.Encode()
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// withRedirect возвращает копию конфигурации с RedirectURL.
func (c *OIDCClient) withRedirect(redirectURI string) *oauth2.Config {
	conf := c.oauth
	conf.RedirectURL = redirectURI
	return &conf
}

// clientContext добавляет HTTP-клиент и таймаут обмена.
func (c *OIDCClient) clientContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.timeout)
}

// toTokenResponse проверяет обязательные поля ответа token endpoint.
func toTokenResponse(tok *oauth2.Token) (*TokenResponse, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: нет access_token", ErrMalformedTokenResponse)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: нет expires_in", ErrMalformedTokenResponse)
	}

	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	return resp, nil
}
