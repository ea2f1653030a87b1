// Пакет auth — аутентификация и сессии conseiller-web.
// Сессия хранится в зашифрованном cookie (AES-256-GCM), токены выдаёт Keycloak.
// Здесь же живут резолвер сессии (с одним молчаливым refresh) и guard маршрутов.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/conseiller-web/internal/domain/roles"
)

// Имя cookie для зашифрованной сессии.
const SessionCookieName = "cw_session"

// Максимальный возраст cookie сессии (12 часов — рабочий день советника).
const SessionCookieMaxAge = 12 * 60 * 60

// RefreshAccessTokenError — тег сессии, чей последний refresh не удался.
// Такая сессия считается непригодной, пока пользователь не войдёт заново.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// User — идентичность советника, извлечённая из access token при входе.
type User struct {
	// ID — идентификатор советника (claim userId).
	ID string `json:"id"`
	// Name — отображаемое имя.
	Name string `json:"name"`
	// Structure — организационная структура (claim userStructure).
	Structure string `json:"structure"`
	// EstConseiller — userType == CONSEILLER.
	EstConseiller bool `json:"estConseiller"`
	// EstSuperviseur — роль SUPERVISEUR.
	EstSuperviseur bool `json:"estSuperviseur"`
	// EstSuperviseurResponsable — роль SUPERVISEUR_RESPONSABLE.
	EstSuperviseurResponsable bool `json:"estSuperviseurResponsable"`
}

// ChatCredential — учётные данные чата, выпущенные backend API при входе.
type ChatCredential struct {
	Token string `json:"token"` //nolint:gosec // G117: токен чата
	Key   string `json:"key"`
}

// SessionData — данные сессии, хранящиеся в зашифрованном cookie.
type SessionData struct {
	// AccessToken — JWT access token от Keycloak.
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	// RefreshToken — refresh token для обновления access token.
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	// ExpiresAt — время истечения access token (Unix timestamp).
	ExpiresAt int64 `json:"expires_at"`
	// IDToken — id_token для id_token_hint при federated logout.
	IDToken string `json:"id_token,omitempty"`
	// User — идентичность советника.
	User User `json:"user"`
	// Chat — учётные данные чата (nil, если чат не выдан).
	Chat *ChatCredential `json:"chat,omitempty"`
	// Error — тег ошибки refresh (RefreshAccessTokenError) или пусто.
	Error string `json:"error,omitempty"`
}

// IsExpired проверяет, истёк ли access token на момент now с учётом запаса leeway.
func (s *SessionData) IsExpired(now time.Time, leeway time.Duration) bool {
	return now.Add(leeway).Unix() >= s.ExpiresAt
}

// Usable возвращает true, если сессия не помечена ошибкой refresh.
func (s *SessionData) Usable() bool {
	return s.Error == ""
}

// Principal возвращает атрибуты пользователя для предикатов roles.
func (s *SessionData) Principal() roles.Principal {
	return roles.Principal{
		ID:                        s.User.ID,
		DisplayName:               s.User.Name,
		Structure:                 roles.Structure(s.User.Structure),
		EstConseiller:             s.User.EstConseiller,
		EstSuperviseur:            s.User.EstSuperviseur,
		EstSuperviseurResponsable: s.User.EstSuperviseurResponsable,
	}
}

// SessionManager шифрует/дешифрует SessionData в HTTP cookies через AES-256-GCM.
type SessionManager struct {
	gcm cipher.AEAD
	// secure — Secure flag для cookie (true для HTTPS).
	secure bool
}

// NewSessionManager создаёт менеджер сессий.
// key — base64 32 bytes либо произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			keyBytes = sha256Key(key)
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{
		gcm:    gcm,
		secure: secure,
	}, nil
}

// Secure возвращает значение Secure flag, используемое для cookies.
func (sm *SessionManager) Secure() bool {
	return sm.secure
}

// Encrypt шифрует произвольное значение в base64-строку (nonce + ciphertext).
// Используется и для сессии, и для state cookie login flow.
func (sm *SessionManager) Encrypt(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку в v.
func (sm *SessionManager) Decrypt(encrypted string, v any) error {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("ошибка дешифрования: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("ошибка десериализации: %w", err)
	}
	return nil
}

// Ограничения на размер session cookie.
const (
	// cookieSizeLimit — предел имени и значения одного cookie в браузере.
	// Cookie больше предела браузер молча отбрасывает.
	cookieSizeLimit = 4096
	// sessionChunkSize — значение одного фрагмента, с запасом под имя.
	sessionChunkSize = cookieSizeLimit - 96
	// maxSessionChunks — предел числа фрагментов: заголовок Cookie
	// упирается в лимиты заголовков ingress.
	maxSessionChunks = 4
)

// ErrSessionTooLarge — зашифрованная сессия не помещается в cookie.
var ErrSessionTooLarge = errors.New("сессия не помещается в cookie")

// SetSessionCookie устанавливает зашифрованную сессию в ответ.
// Сессия, помещающаяся в один cookie, пишется как cw_session, иначе —
// фрагментами cw_session.0, cw_session.1, ... Фрагменты прежней сессии
// из запроса r, не перезаписанные сейчас, удаляются. r может быть nil.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, data *SessionData) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	chunks := splitChunks(encrypted, sessionChunkSize)
	if len(chunks) > maxSessionChunks {
		return fmt.Errorf("%w: %d байт, фрагментов %d", ErrSessionTooLarge, len(encrypted), len(chunks))
	}

	names := []string{SessionCookieName}
	if len(chunks) > 1 {
		names = make([]string, len(chunks))
		for i := range chunks {
			names[i] = chunkCookieName(i)
		}
	}
	for i, name := range names {
		if len(name)+len(chunks[i]) > cookieSizeLimit {
			return fmt.Errorf("%w: cookie %s превышает %d байт", ErrSessionTooLarge, name, cookieSizeLimit)
		}
	}

	written := make(map[string]bool, len(names))
	for i, name := range names {
		http.SetCookie(w, sm.sessionCookie(name, chunks[i], SessionCookieMaxAge))
		written[name] = true
	}
	sm.expireStale(w, r, written)
	return nil
}

// GetSessionFromRequest извлекает и дешифрует SessionData из cookie запроса.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	encrypted, ok := sessionCookieValue(r)
	if !ok {
		return nil, nil
	}

	var data SessionData
	if err := sm.Decrypt(encrypted, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ClearSessionCookie удаляет session cookie и все его фрагменты из запроса r.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sm.sessionCookie(SessionCookieName, "", -1))
	sm.expireStale(w, r, map[string]bool{SessionCookieName: true})
}

// sessionCookie — cookie сессии с общими атрибутами.
func (sm *SessionManager) sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// expireStale удаляет cookie сессии из r, которых нет в keep.
func (sm *SessionManager) expireStale(w http.ResponseWriter, r *http.Request, keep map[string]bool) {
	if r == nil {
		return
	}
	for _, c := range r.Cookies() {
		if isSessionCookieName(c.Name) && !keep[c.Name] {
			http.SetCookie(w, sm.sessionCookie(c.Name, "", -1))
		}
	}
}

// sessionCookieValue собирает значение сессии: целый cookie
// либо фрагменты .0, .1, ... до первого отсутствующего.
func sessionCookieValue(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value, true
	}

	var b strings.Builder
	for i := range maxSessionChunks {
		c, err := r.Cookie(chunkCookieName(i))
		if err != nil {
			break
		}
		b.WriteString(c.Value)
	}
	return b.String(), b.Len() > 0
}

func chunkCookieName(i int) string {
	return SessionCookieName + "." + strconv.Itoa(i)
}

// isSessionCookieName — cw_session или cw_session.N.
func isSessionCookieName(name string) bool {
	if name == SessionCookieName {
		return true
	}
	suffix, ok := strings.CutPrefix(name, SessionCookieName+".")
	if !ok || suffix == "" {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

// splitChunks режет s на части не длиннее size.
func splitChunks(s string, size int) []string {
	chunks := make([]string, 0, len(s)/size+1)
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

// sha256Key хеширует строковый ключ в 32 bytes через SHA-256.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
