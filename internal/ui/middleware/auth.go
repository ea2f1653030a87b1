// Пакет middleware — HTTP middleware интерфейса советника.
// auth.go — guard защищённых страниц: сессия из cookie, silent refresh,
// redirect по решению auth.Guard.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bigkaa/conseiller-web/internal/ui/auth"
)

// contextKey — тип для ключей контекста UI.
type contextKey string

const (
	// ContextKeyUISession — данные сессии в контексте запроса.
	ContextKeyUISession contextKey = "ui_session"
)

// UIAuth — middleware защищённых маршрутов.
// Решение принимает auth.Guard; middleware только исполняет его:
// пишет обновлённый cookie, удаляет повреждённый и отвечает redirect.
type UIAuth struct {
	guard    *auth.Guard
	sessions *auth.SessionManager
	logger   *slog.Logger
}

// NewUIAuth создаёт новый UIAuth middleware.
func NewUIAuth(guard *auth.Guard, sessions *auth.SessionManager, logger *slog.Logger) *UIAuth {
	return &UIAuth{
		guard:    guard,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "ui_auth_middleware")),
	}
}

// Middleware возвращает HTTP middleware проверки сессии.
func (ua *UIAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := ua.guard.RequireSession(r.Context(), r)
			res := outcome.Resolution

			// Повреждённый cookie удаляется, дальше запрос идёт как без сессии
			if res.Corrupted {
				ua.sessions.ClearSessionCookie(w, r)
			}

			if redirect, ok := outcome.Redirect(); ok {
				ua.logger.Debug("Redirect guard",
					slog.String("path", r.URL.Path),
					slog.String("location", redirect.Location()),
				)
				http.Redirect(w, r, redirect.Location(), redirect.StatusCode())
				return
			}

			session, _ := outcome.Session()

			if res.Refreshed {
				if err := ua.sessions.SetSessionCookie(w, r, session); err != nil {
					ua.logger.Error("Ошибка обновления session cookie",
						slog.String("error", err.Error()),
					)
					ua.sessions.ClearSessionCookie(w, r)
					login := auth.LoginRedirect(r)
					http.Redirect(w, r, login.Location(), login.StatusCode())
					return
				}
				ua.logger.Debug("Сессия обновлена через refresh token",
					slog.String("user_id", session.User.ID),
				)
			}

			ctx := WithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithExclusions применяет mw ко всем путям, кроме публичных.
// Путь публичный, если совпадает с элементом списка или лежит под ним.
func WithExclusions(mw func(http.Handler) http.Handler, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		protected := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, public...) {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// IsPublicPath проверяет путь по списку публичных префиксов.
// "/login" покрывает "/login" и "/login/milo", но не "/loginx".
func IsPublicPath(path string, public ...string) bool {
	for _, p := range public {
		p = strings.TrimSuffix(p, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// WithSession помещает сессию в контекст.
func WithSession(ctx context.Context, session *auth.SessionData) context.Context {
	return context.WithValue(ctx, ContextKeyUISession, session)
}

// SessionFromContext извлекает SessionData из контекста запроса.
// Возвращает nil если сессия не найдена (не прошёл через UIAuth middleware).
func SessionFromContext(ctx context.Context) *auth.SessionData {
	session, ok := ctx.Value(ContextKeyUISession).(*auth.SessionData)
	if !ok {
		return nil
	}
	return session
}
