// Пакет handlers — HTTP-обработчики интерфейса советника.
// auth.go — вход через Keycloak OIDC (Authorization Code + PKCE),
// выход и federated logout.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/chat"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/auth"
	"github.com/bigkaa/conseiller-web/internal/ui/pages"
)

// Имя cookie для хранения state авторизации (state + code_verifier + назначение).
const stateCookieName = "cw_auth_state"

// stateCookieMaxAge — максимальный возраст state cookie (10 минут).
const stateCookieMaxAge = 10 * 60

// callbackPath — redirect URI, зарегистрированный в Keycloak.
const callbackPath = "/auth/callback"

// Коды ошибок входа в query страницы /login.
const (
	queryLoginError    = "erreur"
	loginErrorState    = "state"
	loginErrorFailed   = "echec"
	loginErrorProvider = "structure"
)

// loginErrorKeys — код ошибки входа → ключ перевода.
var loginErrorKeys = map[string]string{
	loginErrorState:    "login.error.state",
	loginErrorFailed:   "login.error.failed",
	loginErrorProvider: "login.error.unknown_provider",
}

// Provider — провайдер идентичности на странице входа.
type Provider struct {
	// ID — сегмент пути /login/{id}.
	ID string
	// IDPHint — kc_idp_hint брокера Keycloak.
	IDPHint string
	// LabelKey — ключ перевода подписи кнопки.
	LabelKey string
}

// DefaultProviders — провайдеры входа советников.
var DefaultProviders = []Provider{
	{ID: "milo", IDPHint: "similo-conseiller", LabelKey: "login.provider.milo"},
	{ID: "france-travail", IDPHint: "pe-conseiller", LabelKey: "login.provider.france_travail"},
	{ID: "conseil-dept", IDPHint: "conseildepartemental-conseiller", LabelKey: "login.provider.conseil_dept"},
}

// OIDCProvider — операции Keycloak, нужные обработчикам входа (auth.OIDCClient).
type OIDCProvider interface {
	AuthorizeURL(redirectURI, state, verifier, idpHint string) string
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*auth.TokenResponse, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (*auth.IDTokenClaims, error)
	LogoutURL(idTokenHint, postLogoutRedirectURI string) string
}

// AccessTokenVerifier — проверка access token и извлечение идентичности (auth.ClaimsVerifier).
type AccessTokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (*auth.User, error)
}

// ChatTokenIssuer — выпуск учётных данных чата (apiclient.Client).
type ChatTokenIssuer interface {
	CreateChatToken(ctx context.Context, accessToken string) (*apiclient.ChatToken, error)
}

// AuthHandler — обработчики аутентификации.
type AuthHandler struct {
	oidc      OIDCProvider
	claims    AccessTokenVerifier
	sessions  *auth.SessionManager
	guard     *auth.Guard
	chatToken ChatTokenIssuer
	chat      chat.Client
	providers []Provider
	// publicURL — внешний адрес приложения; пусто — из заголовков запроса.
	publicURL string
	logger    *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	oidcClient OIDCProvider,
	claims AccessTokenVerifier,
	sessions *auth.SessionManager,
	guard *auth.Guard,
	chatToken ChatTokenIssuer,
	chatClient chat.Client,
	providers []Provider,
	publicURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		oidc:      oidcClient,
		claims:    claims,
		sessions:  sessions,
		guard:     guard,
		chatToken: chatToken,
		chat:      chatClient,
		providers: providers,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		logger:    logger.With(slog.String("component", "ui_auth")),
	}
}

// stateData — данные, сохраняемые в state cookie на время auth flow.
type stateData struct {
	// State — CSRF state parameter.
	State string `json:"state"`
	// CodeVerifier — PKCE code_verifier для обмена code → tokens.
	CodeVerifier string `json:"code_verifier"`
	// RedirectURL и Source — параметры страницы входа.
	RedirectURL string `json:"redirect_url,omitempty"`
	Source      string `json:"source,omitempty"`
}

// HandleLogin — GET /login
// Уже вошедший советник сразу уходит на назначение; иначе — выбор провайдера.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	params := auth.LoginParamsFromQuery(r.URL.Query())

	redirect, res := h.guard.RedirectIfAlreadyConnected(r.Context(), r, params)
	h.persist(w, r, res)

	if redirect != nil {
		http.Redirect(w, r, redirect.Location(), redirect.StatusCode())
		return
	}

	data := pages.LoginData{
		RedirectURL: params.RedirectURL,
		Source:      params.Source,
		ErrorKey:    loginErrorKeys[r.URL.Query().Get(queryLoginError)],
	}
	for _, p := range h.providers {
		data.Providers = append(data.Providers, pages.LoginProvider{ID: p.ID, LabelKey: p.LabelKey})
	}

	if err := pages.Login(data).Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы входа", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
	}
}

// HandleProviderLogin — GET /login/{provider}
// Генерирует PKCE и state, сохраняет их в зашифрованном short-lived cookie,
// redirect на Keycloak authorize endpoint с kc_idp_hint.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	params := auth.LoginParamsFromQuery(r.URL.Query())

	provider, ok := h.findProvider(chi.URLParam(r, "provider"))
	if !ok {
		h.redirectToLogin(w, r, loginErrorProvider, params)
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("Ошибка генерации state", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	sd := stateData{
		State:        state,
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURL:  params.RedirectURL,
		Source:       params.Source,
	}
	encrypted, err := h.sessions.Encrypt(sd)
	if err != nil {
		h.logger.Error("Ошибка шифрования state cookie", slog.String("error", err.Error()))
		http.Error(w, "Erreur interne", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.sessions.Secure(),
		SameSite: http.SameSiteLaxMode,
	})

	authorizeURL := h.oidc.AuthorizeURL(h.buildRedirectURI(r), state, sd.CodeVerifier, provider.IDPHint)

	h.logger.Debug("Redirect на Keycloak login",
		slog.String("provider", provider.ID),
	)

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleCallback — GET /auth/callback
// Обменивает authorization code на tokens, проверяет их, выпускает
// учётные данные чата, создаёт session cookie и уводит на назначение.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	// 1. Извлекаем state cookie: без него не знаем ни verifier, ни назначения
	sd, ok := h.readState(r)
	h.clearStateCookie(w)
	if !ok {
		h.redirectToLogin(w, r, loginErrorState, auth.LoginParams{})
		return
	}
	params := auth.LoginParams{RedirectURL: sd.RedirectURL, Source: sd.Source}

	// 2. Ошибка от Keycloak
	if errCode := q.Get("error"); errCode != "" {
		h.logger.Warn("Keycloak вернул ошибку авторизации",
			slog.String("error", errCode),
			slog.String("description", q.Get("error_description")),
		)
		h.redirectToLogin(w, r, loginErrorFailed, params)
		return
	}

	// 3. Валидируем state (CSRF-защита)
	code := q.Get("code")
	if code == "" || q.Get("state") != sd.State {
		h.logger.Warn("State mismatch или отсутствует code")
		h.redirectToLogin(w, r, loginErrorState, params)
		return
	}

	// 4. Обмениваем code на tokens
	tokens, err := h.oidc.ExchangeCode(ctx, code, h.buildRedirectURI(r), sd.CodeVerifier)
	if err != nil {
		h.logger.Error("Ошибка обмена code на tokens", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, loginErrorFailed, params)
		return
	}

	// 5. Проверяем id_token и access token
	var idClaims *auth.IDTokenClaims
	if tokens.IDToken != "" {
		idClaims, err = h.oidc.VerifyIDToken(ctx, tokens.IDToken)
		if err != nil {
			h.logger.Error("Некорректный id_token", slog.String("error", err.Error()))
			h.redirectToLogin(w, r, loginErrorFailed, params)
			return
		}
	}

	user, err := h.claims.Verify(ctx, tokens.AccessToken)
	if err != nil {
		h.logger.Error("Некорректный access token", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, loginErrorFailed, params)
		return
	}
	if user.Name == "" && idClaims != nil {
		user.Name = strings.TrimSpace(idClaims.GivenName + " " + idClaims.FamilyName)
	}

	session := &auth.SessionData{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.Expiry.Unix(),
		IDToken:      tokens.IDToken,
		User:         *user,
	}

	// 6. Учётные данные чата; вход без них не прерывается
	if user.EstConseiller && roles.UsesChatFeature(session.Principal()) {
		session.Chat = h.issueChatCredential(ctx, tokens.AccessToken, user.ID)
	}

	// 7. Устанавливаем session cookie
	if err := h.sessions.SetSessionCookie(w, r, session); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		h.redirectToLogin(w, r, loginErrorFailed, params)
		return
	}

	h.logger.Info("Советник аутентифицирован",
		slog.String("user_id", user.ID),
		slog.String("structure", user.Structure),
		slog.Bool("est_conseiller", user.EstConseiller),
	)

	// 8. Redirect на назначение; не-советника дальше отправит guard
	dest := params.Destination()
	http.Redirect(w, r, dest.Location(), dest.StatusCode())
}

// HandleLogout — POST /logout
// Завершает сессию чата и уводит на federated logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSessionFromRequest(r)
	if err == nil && session != nil {
		h.signOutChat(r.Context(), session)
	}

	h.logger.Info("Советник выполняет logout")
	http.Redirect(w, r, auth.FederatedLogoutPath, http.StatusSeeOther)
}

// HandleFederatedLogout — GET /api/auth/federated-logout
// Удаляет session cookie и завершает SSO-сессию Keycloak.
// Без сессии — сразу на страницу входа.
func (h *AuthHandler) HandleFederatedLogout(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSessionFromRequest(r)
	if err != nil || session == nil {
		if err != nil {
			h.sessions.ClearSessionCookie(w, r)
		}
		http.Redirect(w, r, auth.LoginPath, http.StatusFound)
		return
	}

	h.sessions.ClearSessionCookie(w, r)
	h.signOutChat(r.Context(), session)

	logoutURL := h.oidc.LogoutURL(session.IDToken, h.buildBaseURL(r)+auth.LoginPath)

	h.logger.Info("Federated logout",
		slog.String("user_id", session.User.ID),
	)

	http.Redirect(w, r, logoutURL, http.StatusFound)
}

// persist записывает результат резолвера в cookie.
func (h *AuthHandler) persist(w http.ResponseWriter, r *http.Request, res auth.Resolution) {
	switch {
	case res.Corrupted:
		h.sessions.ClearSessionCookie(w, r)
	case res.Refreshed:
		if err := h.sessions.SetSessionCookie(w, r, res.Session); err != nil {
			h.logger.Error("Ошибка обновления session cookie", slog.String("error", err.Error()))
			h.sessions.ClearSessionCookie(w, r)
		}
	}
}

// issueChatCredential запрашивает токен чата у backend API.
func (h *AuthHandler) issueChatCredential(ctx context.Context, accessToken, userID string) *auth.ChatCredential {
	if h.chatToken == nil {
		return nil
	}
	token, err := h.chatToken.CreateChatToken(ctx, accessToken)
	if err != nil {
		h.logger.Warn("Не удалось получить токен чата",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &auth.ChatCredential{Token: token.Token, Key: token.Key}
}

// signOutChat завершает сессию чата; ошибка только логируется.
func (h *AuthHandler) signOutChat(ctx context.Context, session *auth.SessionData) {
	if session.Chat == nil || h.chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.chat.SignOut(ctx, chat.Credential{Token: session.Chat.Token, Key: session.Chat.Key}); err != nil {
		h.logger.Warn("Ошибка sign-out чата",
			slog.String("user_id", session.User.ID),
			slog.String("error", err.Error()),
		)
	}
}

// readState расшифровывает state cookie.
func (h *AuthHandler) readState(r *http.Request) (stateData, bool) {
	var sd stateData
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		h.logger.Warn("State cookie отсутствует")
		return sd, false
	}
	if err := h.sessions.Decrypt(cookie.Value, &sd); err != nil {
		h.logger.Warn("Некорректный state cookie", slog.String("error", err.Error()))
		return sd, false
	}
	return sd, sd.State != "" && sd.CodeVerifier != ""
}

// clearStateCookie удаляет state cookie (одноразовый).
func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessions.Secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectToLogin возвращает на /login с кодом ошибки и параметрами входа.
func (h *AuthHandler) redirectToLogin(w http.ResponseWriter, r *http.Request, errCode string, params auth.LoginParams) {
	q := url.Values{}
	q.Set(queryLoginError, errCode)
	if params.RedirectURL != "" {
		q.Set(auth.QueryRedirectURL, params.RedirectURL)
	}
	if params.Source != "" {
		q.Set(auth.QuerySource, params.Source)
	}
	target := auth.Redirect{Path: auth.LoginPath, Query: q}
	http.Redirect(w, r, target.Location(), target.StatusCode())
}

// findProvider ищет провайдера по сегменту пути.
func (h *AuthHandler) findProvider(id string) (Provider, bool) {
	for _, p := range h.providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// buildRedirectURI формирует callback redirect URI.
func (h *AuthHandler) buildRedirectURI(r *http.Request) string {
	return h.buildBaseURL(r) + callbackPath
}

// buildBaseURL формирует базовый URL (scheme + host).
// Явный publicURL имеет приоритет; иначе учитываются X-Forwarded-* заголовки.
func (h *AuthHandler) buildBaseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}

	return scheme + "://" + host
}
