package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/chat"
	"github.com/bigkaa/conseiller-web/internal/ui/auth"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/conseiller-web/internal/ui/middleware"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager("handlers-test-secret", false)
	require.NoError(t, err)
	return sm
}

// withUIContext оборачивает handler в i18n и slots, как это делает сервер.
func withUIContext(t *testing.T, h http.Handler) http.Handler {
	t.Helper()
	bundle := i18n.NewBundle(testLogger())
	require.NoError(t, i18n.LoadFromEmbedFS(bundle, testLogger()))
	return i18n.Middleware(bundle, "fr")(slots.Middleware(h))
}

// addSessionCookie добавляет зашифрованный session cookie в запрос.
func addSessionCookie(t *testing.T, sm *auth.SessionManager, req *http.Request, session *auth.SessionData) {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, sm.SetSessionCookie(rec, nil, session))
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
}

// withSession кладёт сессию в контекст, как guard middleware.
func withSession(req *http.Request, session *auth.SessionData) *http.Request {
	return req.WithContext(uimiddleware.WithSession(req.Context(), session))
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func validSession() *auth.SessionData {
	return &auth.SessionData{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		IDToken:      "id-token-0",
		User: auth.User{
			ID:            "conseiller-1",
			Name:          "Nils Tavernier",
			Structure:     "MILO",
			EstConseiller: true,
		},
		Chat: &auth.ChatCredential{Token: "chat-token", Key: "chat-key"},
	}
}

// --- Заглушки зависимостей ---

type fakeRefresher struct {
	tokens *auth.TokenResponse
	err    error
}

func (f *fakeRefresher) RefreshTokens(context.Context, string) (*auth.TokenResponse, error) {
	if f.tokens == nil && f.err == nil {
		return nil, errors.New("refresh non prévu")
	}
	return f.tokens, f.err
}

func newGuard(sm *auth.SessionManager, refresher auth.TokenRefresher) (*auth.Guard, *auth.Resolver) {
	resolver := auth.NewResolver(sm, refresher, 30*time.Second, testLogger())
	return auth.NewGuard(resolver), resolver
}

type stubOIDC struct {
	tokens      *auth.TokenResponse
	exchangeErr error
	idClaims    *auth.IDTokenClaims
	idErr       error

	exchanges       int
	lastCode        string
	lastRedirectURI string
	lastVerifier    string
	lastHint        string
}

func (s *stubOIDC) AuthorizeURL(redirectURI, state, verifier, idpHint string) string {
	s.lastRedirectURI = redirectURI
	s.lastVerifier = verifier
	s.lastHint = idpHint
	q := url.Values{"state": {state}, "redirect_uri": {redirectURI}, "kc_idp_hint": {idpHint}}
	return "https://kc.example.fr/realms/pass-emploi/protocol/openid-connect/auth?" + q.Encode()
}

func (s *stubOIDC) ExchangeCode(_ context.Context, code, redirectURI, codeVerifier string) (*auth.TokenResponse, error) {
	s.exchanges++
	s.lastCode = code
	s.lastRedirectURI = redirectURI
	s.lastVerifier = codeVerifier
	return s.tokens, s.exchangeErr
}

func (s *stubOIDC) VerifyIDToken(context.Context, string) (*auth.IDTokenClaims, error) {
	if s.idErr != nil {
		return nil, s.idErr
	}
	if s.idClaims == nil {
		return &auth.IDTokenClaims{}, nil
	}
	return s.idClaims, nil
}

func (s *stubOIDC) LogoutURL(idTokenHint, postLogoutRedirectURI string) string {
	q := url.Values{"client_id": {"pass-emploi-web"}, "post_logout_redirect_uri": {postLogoutRedirectURI}}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	return "https://kc.example.fr/realms/pass-emploi/protocol/openid-connect/logout?" + q.Encode()
}

type stubClaims struct {
	user *auth.User
	err  error
}

func (s *stubClaims) Verify(context.Context, string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u := *s.user
	return &u, nil
}

type stubChatIssuer struct {
	token *apiclient.ChatToken
	err   error
	calls int
}

func (s *stubChatIssuer) CreateChatToken(context.Context, string) (*apiclient.ChatToken, error) {
	s.calls++
	return s.token, s.err
}

type stubChat struct {
	calls    int
	lastCred chat.Credential
}

func (s *stubChat) SignOut(_ context.Context, cred chat.Credential) error {
	s.calls++
	s.lastCred = cred
	return nil
}

type stubAPI struct {
	conseiller    *apiclient.Conseiller
	conseillerErr error
	jeunes        []apiclient.Jeune
	jeunesErr     error
	jeune         *apiclient.JeuneDetail
	jeuneErr      error
	rdvs          []apiclient.RendezVous
	rdvsErr       error

	lastToken string
	lastFrom  time.Time
	lastTo    time.Time
}

func (s *stubAPI) GetConseiller(_ context.Context, accessToken, _ string) (*apiclient.Conseiller, error) {
	s.lastToken = accessToken
	if s.conseillerErr != nil {
		return nil, s.conseillerErr
	}
	if s.conseiller == nil {
		return &apiclient.Conseiller{}, nil
	}
	return s.conseiller, nil
}

func (s *stubAPI) ListJeunes(_ context.Context, accessToken, _ string) ([]apiclient.Jeune, error) {
	s.lastToken = accessToken
	return s.jeunes, s.jeunesErr
}

func (s *stubAPI) GetJeune(_ context.Context, accessToken, _ string) (*apiclient.JeuneDetail, error) {
	s.lastToken = accessToken
	return s.jeune, s.jeuneErr
}

func (s *stubAPI) ListRendezVous(_ context.Context, accessToken, _ string, from, to time.Time) ([]apiclient.RendezVous, error) {
	s.lastToken = accessToken
	s.lastFrom = from
	s.lastTo = to
	return s.rdvs, s.rdvsErr
}
