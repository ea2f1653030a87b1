package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// TokenRefresher — обмен refresh token на новые токены (OIDCClient).
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Resolution — результат разрешения сессии для одного запроса.
type Resolution struct {
	// Session — текущая сессия или nil.
	Session *SessionData
	// Refreshed — access token обновлён, cookie нужно перезаписать.
	Refreshed bool
	// Corrupted — cookie присутствовал, но не расшифровался; cookie нужно удалить.
	Corrupted bool
}

// Resolver читает сессию из cookie и не более одного раза за запрос
// обновляет истёкший access token.
type Resolver struct {
	sessions  *SessionManager
	refresher TokenRefresher
	leeway    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewResolver создаёт резолвер сессии.
// leeway — запас до истечения access token, при котором выполняется refresh.
func NewResolver(sessions *SessionManager, refresher TokenRefresher, leeway time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		sessions:  sessions,
		refresher: refresher,
		leeway:    leeway,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "session_resolver")),
	}
}

// Resolve возвращает сессию запроса.
// Ошибка refresh не возвращается: сессия получает тег RefreshAccessTokenError
// и сохраняет прежнюю идентичность.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) Resolution {
	session, err := r.sessions.GetSessionFromRequest(req)
	if err != nil {
		r.logger.Debug("Повреждённый session cookie",
			slog.String("error", err.Error()),
			slog.String("remote_addr", req.RemoteAddr),
		)
		return Resolution{Corrupted: true}
	}
	if session == nil {
		return Resolution{}
	}

	// Уже помеченная сессия повторно не обновляется
	if !session.Usable() || !session.IsExpired(r.now(), r.leeway) {
		return Resolution{Session: session}
	}

	return r.refresh(ctx, session)
}

// refresh выполняет ровно одну попытку обновления токенов.
func (r *Resolver) refresh(ctx context.Context, session *SessionData) Resolution {
	tokens, err := r.refresher.RefreshTokens(ctx, session.RefreshToken)
	if err != nil {
		refreshTotal.WithLabelValues(refreshResultFailure).Inc()
		r.logger.Info("Не удалось обновить access token",
			slog.String("user_id", session.User.ID),
			slog.String("error", err.Error()),
		)
		failed := *session
		failed.Error = RefreshAccessTokenError
		return Resolution{Session: &failed}
	}

	refreshTotal.WithLabelValues(refreshResultSuccess).Inc()

	refreshed := *session
	refreshed.AccessToken = tokens.AccessToken
	refreshed.ExpiresAt = tokens.Expiry.Unix()
	if tokens.RefreshToken != "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if tokens.IDToken != "" {
		refreshed.IDToken = tokens.IDToken
	}
	refreshed.Error = ""

	r.logger.Debug("Сессия обновлена через refresh token",
		slog.String("user_id", refreshed.User.ID),
		slog.Time("expires_at", tokens.Expiry),
	)
	return Resolution{Session: &refreshed, Refreshed: true}
}
