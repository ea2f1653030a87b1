package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-cw"

// testRealm — realm фейкового Keycloak.
const testRealm = "pass-emploi"

// testLogger создаёт logger, не засоряющий вывод тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// signToken подписывает claims RS256 с kid тестового ключа.
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись JWT: %v", err)
	}
	return signed
}

// fakeKeycloak — httptest-сервер с token и certs endpoints realm.
type fakeKeycloak struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	mu     sync.Mutex
	forms  []url.Values
	status int
	body   string
	ctype  string
	// delay — задержка ответа token endpoint.
	delay time.Duration
}

// newFakeKeycloak запускает фейковый Keycloak, по умолчанию выдающий токены.
func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	fk := &fakeKeycloak{
		key:    generateTestKey(t),
		status: http.StatusOK,
		body: `{"access_token":"new-access","refresh_token":"new-refresh",` +
			`"token_type":"Bearer","expires_in":300}`,
		ctype: "application/json",
	}

	base := "/realms/" + testRealm + "/protocol/openid-connect"
	mux := http.NewServeMux()
	mux.HandleFunc(base+"/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fk.mu.Lock()
		fk.forms = append(fk.forms, r.PostForm)
		status, body, ctype, delay := fk.status, fk.body, fk.ctype, fk.delay
		fk.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", ctype)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc(base+"/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buildJWKSetJSON(&fk.key.PublicKey, testKeyID))
	})

	fk.server = httptest.NewServer(mux)
	t.Cleanup(fk.server.Close)
	return fk
}

// respond задаёт ответ token endpoint.
func (fk *fakeKeycloak) respond(status int, ctype, body string) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.status, fk.ctype, fk.body = status, ctype, body
}

// slowDown задерживает ответы token endpoint на d.
func (fk *fakeKeycloak) slowDown(d time.Duration) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.delay = d
}

// tokenRequests возвращает формы всех запросов к token endpoint.
func (fk *fakeKeycloak) tokenRequests() []url.Values {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return append([]url.Values(nil), fk.forms...)
}

// issuer — issuer токенов фейкового Keycloak.
func (fk *fakeKeycloak) issuer() string {
	return fk.server.URL + "/realms/" + testRealm
}

// client создаёт OIDCClient, направленный на фейковый Keycloak.
func (fk *fakeKeycloak) client() *OIDCClient {
	return fk.clientWithTimeout(2 * time.Second)
}

// clientWithTimeout — client с заданным таймаутом обмена.
func (fk *fakeKeycloak) clientWithTimeout(timeout time.Duration) *OIDCClient {
	return NewOIDCClient(OIDCConfig{
		KeycloakURL:  fk.server.URL,
		Realm:        testRealm,
		ClientID:     "pass-emploi-web",
		ClientSecret: "s3cret",
		HTTPClient:   fk.server.Client(),
		Timeout:      timeout,
	})
}

// stubRefresher — TokenRefresher с фиксированным ответом и счётчиком вызовов.
type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens *TokenResponse
	err    error
	lastRT string
}

func (s *stubRefresher) RefreshTokens(_ context.Context, refreshToken string) (*TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastRT = refreshToken
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens, nil
}

func (s *stubRefresher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// requestWithSession создаёт запрос с зашифрованным session cookie.
func requestWithSession(t *testing.T, sm *SessionManager, target string, data *SessionData) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if data == nil {
		return req
	}
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		t.Fatalf("шифрование сессии: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: encrypted})
	return req
}

// validSession — пригодная сессия советника с access token на 5 минут.
func validSession() *SessionData {
	return &SessionData{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
		User: User{
			ID:            "conseiller-1",
			Name:          "Nils Tavernier",
			Structure:     "MILO",
			EstConseiller: true,
		},
	}
}

// expiredSession — сессия с истёкшим access token.
func expiredSession() *SessionData {
	s := validSession()
	s.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	return s
}
