package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/conseiller-web/internal/domain/roles"
)

// TestSessionEncryptDecryptRoundTrip проверяет шифрование и дешифрование SessionData.
func TestSessionEncryptDecryptRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}

	original := &SessionData{
		AccessToken:  "access-12345",
		RefreshToken: "refresh-67890",
		ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
		User: User{
			ID:             "conseiller-1",
			Name:           "Nils Tavernier",
			Structure:      "MILO",
			EstConseiller:  true,
			EstSuperviseur: true,
		},
		Chat: &ChatCredential{Token: "chat-token", Key: "chat-key"},
	}

	encrypted, err := sm.Encrypt(original)
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}
	if encrypted == "" {
		t.Fatal("Зашифрованная строка пустая")
	}

	var decrypted SessionData
	if err := sm.Decrypt(encrypted, &decrypted); err != nil {
		t.Fatalf("Ошибка дешифрования: %v", err)
	}

	if decrypted.AccessToken != original.AccessToken {
		t.Errorf("AccessToken: want %q, got %q", original.AccessToken, decrypted.AccessToken)
	}
	if decrypted.RefreshToken != original.RefreshToken {
		t.Errorf("RefreshToken: want %q, got %q", original.RefreshToken, decrypted.RefreshToken)
	}
	if decrypted.ExpiresAt != original.ExpiresAt {
		t.Errorf("ExpiresAt: want %d, got %d", original.ExpiresAt, decrypted.ExpiresAt)
	}
	if decrypted.User != original.User {
		t.Errorf("User: want %+v, got %+v", original.User, decrypted.User)
	}
	if decrypted.Chat == nil || *decrypted.Chat != *original.Chat {
		t.Errorf("Chat: want %+v, got %+v", original.Chat, decrypted.Chat)
	}
	if decrypted.Error != "" {
		t.Errorf("Error: want пусто, got %q", decrypted.Error)
	}
}

// TestSessionManagerWithBase64Key проверяет инициализацию с base64-ключом 32 bytes.
func TestSessionManagerWithBase64Key(t *testing.T) {
	key := "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes
	sm1, err := NewSessionManager(key, false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}
	sm2, _ := NewSessionManager(key, false)

	encrypted, err := sm1.Encrypt(&SessionData{AccessToken: "a"})
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	// Тот же ключ — другой экземпляр должен расшифровать
	var data SessionData
	if err := sm2.Decrypt(encrypted, &data); err != nil {
		t.Fatalf("Ошибка дешифрования другим экземпляром: %v", err)
	}
	if data.AccessToken != "a" {
		t.Errorf("AccessToken: want a, got %q", data.AccessToken)
	}
}

// TestSessionDecryptWithWrongKey проверяет, что чужой ключ не расшифровывает cookie.
func TestSessionDecryptWithWrongKey(t *testing.T) {
	sm1, _ := NewSessionManager("key-one", false)
	sm2, _ := NewSessionManager("key-two", false)

	encrypted, err := sm1.Encrypt(&SessionData{AccessToken: "secret"})
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}

	var data SessionData
	if err := sm2.Decrypt(encrypted, &data); err == nil {
		t.Error("Ожидалась ошибка дешифрования чужим ключом")
	}
}

// TestSessionDecryptGarbage проверяет обработку повреждённых данных.
func TestSessionDecryptGarbage(t *testing.T) {
	sm, _ := NewSessionManager("key", false)

	for _, value := range []string{"", "not-base64!!", "YWJj"} {
		var data SessionData
		if err := sm.Decrypt(value, &data); err == nil {
			t.Errorf("Ожидалась ошибка для %q", value)
		}
	}
}

// TestSessionIsExpired проверяет логику истечения с запасом.
func TestSessionIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	leeway := 30 * time.Second

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"истёк в прошлом", now.Add(-time.Minute), true},
		{"истекает через минуту", now.Add(time.Minute), false},
		{"в зоне запаса", now.Add(20 * time.Second), true},
		{"ровно на границе запаса", now.Add(leeway), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SessionData{ExpiresAt: tt.expiresAt.Unix()}
			if got := s.IsExpired(now, leeway); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSessionPrincipal проверяет преобразование в roles.Principal.
func TestSessionPrincipal(t *testing.T) {
	s := &SessionData{User: User{
		ID:                        "c-1",
		Name:                      "Albert Durant",
		Structure:                 "POLE_EMPLOI",
		EstConseiller:             true,
		EstSuperviseurResponsable: true,
	}}

	p := s.Principal()
	if p.ID != "c-1" || p.DisplayName != "Albert Durant" {
		t.Errorf("идентичность: got %+v", p)
	}
	if !roles.IsFranceTravailCEJ(p) {
		t.Error("ожидалось семейство France Travail CEJ")
	}
	if roles.IsSupervisor(p) {
		t.Error("IsSupervisor() = true без флага EstSuperviseur")
	}
	if !roles.IsResponsibleSupervisor(p) {
		t.Error("IsResponsibleSupervisor() = false")
	}
}

// TestSessionUsable проверяет тег ошибки refresh.
func TestSessionUsable(t *testing.T) {
	if !(&SessionData{}).Usable() {
		t.Error("сессия без тега должна быть пригодной")
	}
	if (&SessionData{Error: RefreshAccessTokenError}).Usable() {
		t.Error("сессия с тегом RefreshAccessTokenError не должна быть пригодной")
	}
}

// TestSessionCookieSetAndGet проверяет установку и извлечение cookie.
func TestSessionCookieSetAndGet(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)

	data := &SessionData{
		AccessToken: "access-123",
		User:        User{ID: "c-1", EstConseiller: true},
		ExpiresAt:   time.Now().Add(5 * time.Minute).Unix(),
	}

	w := httptest.NewRecorder()
	if err := sm.SetSessionCookie(w, nil, data); err != nil {
		t.Fatalf("Ошибка установки cookie: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Cookie не установлен")
	}

	req := httptest.NewRequest(http.MethodGet, "/agenda", nil)
	req.AddCookie(cookies[0])

	got, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("Ошибка чтения сессии из cookie: %v", err)
	}
	if got == nil {
		t.Fatal("Сессия не найдена")
	}
	if got.AccessToken != data.AccessToken {
		t.Errorf("AccessToken: want %q, got %q", data.AccessToken, got.AccessToken)
	}
	if got.User.ID != "c-1" {
		t.Errorf("User.ID: want c-1, got %q", got.User.ID)
	}

	cookie := cookies[0]
	if cookie.Name != SessionCookieName {
		t.Errorf("Cookie name: want %q, got %q", SessionCookieName, cookie.Name)
	}
	if cookie.Path != "/" {
		t.Errorf("Cookie path: want /, got %q", cookie.Path)
	}
	if !cookie.HttpOnly {
		t.Error("Cookie должен быть HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Error("Cookie должен быть SameSite=Lax")
	}
}

// TestSessionCookieMissing проверяет, что отсутствие cookie возвращает nil, nil.
func TestSessionCookieMissing(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	data, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("Ожидалось nil error, получено: %v", err)
	}
	if data != nil {
		t.Error("Ожидалось nil data при отсутствии cookie")
	}
}

// TestSessionCookieCorrupted проверяет, что испорченный cookie даёт ошибку.
func TestSessionCookieCorrupted(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})

	data, err := sm.GetSessionFromRequest(req)
	if err == nil {
		t.Error("Ожидалась ошибка для испорченного cookie")
	}
	if data != nil {
		t.Error("Ожидалось nil data для испорченного cookie")
	}
}

// TestClearSessionCookie проверяет очистку session cookie.
func TestClearSessionCookie(t *testing.T) {
	sm, _ := NewSessionManager("test-key", true)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w, nil)

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Cookie очистки не установлен")
	}

	cookie := cookies[0]
	if cookie.MaxAge != -1 {
		t.Errorf("MaxAge: want -1, got %d", cookie.MaxAge)
	}
	if cookie.Value != "" {
		t.Error("Value должен быть пустым")
	}
	if !cookie.Secure {
		t.Error("Cookie должен быть Secure")
	}
}

// realisticSession — сессия с токенами типичного для Keycloak и чата размера.
func realisticSession() *SessionData {
	return &SessionData{
		AccessToken:  strings.Repeat("a", 1400),
		RefreshToken: strings.Repeat("r", 700),
		IDToken:      strings.Repeat("i", 1100),
		ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
		User: User{
			ID:            "c-1",
			Name:          "Nils Tavernier",
			Structure:     "MILO",
			EstConseiller: true,
		},
		Chat: &ChatCredential{Token: strings.Repeat("f", 850), Key: "chat-key"},
	}
}

// TestSessionCookie_RealisticTokensAreChunked проверяет, что сессия с
// реальными токенами режется на фрагменты в пределах лимита браузера.
func TestSessionCookie_RealisticTokensAreChunked(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)
	data := realisticSession()

	w := httptest.NewRecorder()
	if err := sm.SetSessionCookie(w, nil, data); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) < 2 {
		t.Fatalf("Ожидалось несколько фрагментов, получено %d cookie", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for i, c := range cookies {
		if want := SessionCookieName + "." + strconv.Itoa(i); c.Name != want {
			t.Errorf("cookie %d: want name %q, got %q", i, want, c.Name)
		}
		if size := len(c.Name) + len(c.Value); size > cookieSizeLimit {
			t.Errorf("cookie %s: %d байт > %d", c.Name, size, cookieSizeLimit)
		}
		req.AddCookie(c)
	}

	got, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("GetSessionFromRequest: %v", err)
	}
	if got == nil {
		t.Fatal("Сессия не собрана из фрагментов")
	}
	if got.AccessToken != data.AccessToken || got.IDToken != data.IDToken {
		t.Error("Токены не совпадают после сборки фрагментов")
	}
	if got.Chat == nil || got.Chat.Token != data.Chat.Token {
		t.Error("Учётные данные чата потеряны")
	}
}

// TestSessionCookie_MissingChunkIsCorrupted проверяет, что неполный набор
// фрагментов не расшифровывается.
func TestSessionCookie_MissingChunkIsCorrupted(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)

	w := httptest.NewRecorder()
	if err := sm.SetSessionCookie(w, nil, realisticSession()); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(w.Result().Cookies()[0])

	if _, err := sm.GetSessionFromRequest(req); err == nil {
		t.Error("Ожидалась ошибка для неполного набора фрагментов")
	}
}

// TestSessionCookie_TooLarge проверяет отказ для сессии больше maxSessionChunks.
func TestSessionCookie_TooLarge(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)
	data := realisticSession()
	data.AccessToken = strings.Repeat("a", maxSessionChunks*cookieSizeLimit)

	w := httptest.NewRecorder()
	err := sm.SetSessionCookie(w, nil, data)
	if !errors.Is(err, ErrSessionTooLarge) {
		t.Fatalf("want ErrSessionTooLarge, got %v", err)
	}
	if n := len(w.Result().Cookies()); n != 0 {
		t.Errorf("Ожидалось 0 cookie, установлено %d", n)
	}
}

// TestSessionCookie_ShrinkExpiresStaleChunks проверяет, что фрагменты
// прежней большой сессии удаляются при записи маленькой.
func TestSessionCookie_ShrinkExpiresStaleChunks(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)

	big := httptest.NewRecorder()
	if err := sm.SetSessionCookie(big, nil, realisticSession()); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range big.Result().Cookies() {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	small := &SessionData{AccessToken: "a", User: User{ID: "c-1"}}
	if err := sm.SetSessionCookie(w, req, small); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	byName := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		byName[c.Name] = c
	}
	if c := byName[SessionCookieName]; c == nil || c.MaxAge <= 0 {
		t.Errorf("Ожидался живой cookie %s", SessionCookieName)
	}
	for _, name := range []string{SessionCookieName + ".0", SessionCookieName + ".1"} {
		if c := byName[name]; c == nil || c.MaxAge != -1 {
			t.Errorf("Фрагмент %s должен быть удалён", name)
		}
	}
}

// TestClearSessionCookie_Chunks проверяет удаление всех фрагментов.
func TestClearSessionCookie_Chunks(t *testing.T) {
	sm, _ := NewSessionManager("test-key", false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName + ".0", Value: "x"})
	req.AddCookie(&http.Cookie{Name: SessionCookieName + ".1", Value: "y"})
	req.AddCookie(&http.Cookie{Name: "cw_lang", Value: "fr"})

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w, req)

	cleared := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		if c.MaxAge == -1 {
			cleared[c.Name] = true
		}
	}
	for _, name := range []string{SessionCookieName, SessionCookieName + ".0", SessionCookieName + ".1"} {
		if !cleared[name] {
			t.Errorf("cookie %s не удалён", name)
		}
	}
	if cleared["cw_lang"] {
		t.Error("Посторонний cookie не должен удаляться")
	}
}

func TestIsSessionCookieName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"cw_session", true},
		{"cw_session.0", true},
		{"cw_session.12", true},
		{"cw_session.", false},
		{"cw_session.x", false},
		{"cw_auth_state", false},
	}
	for _, tt := range tests {
		if got := isSessionCookieName(tt.name); got != tt.want {
			t.Errorf("isSessionCookieName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
