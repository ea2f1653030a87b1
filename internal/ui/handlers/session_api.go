package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/conseiller-web/internal/api/errors"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/auth"
)

// SessionAPIHandler — GET /api/auth/session для скриптов страницы.
type SessionAPIHandler struct {
	resolver *auth.Resolver
	sessions *auth.SessionManager
	logger   *slog.Logger
}

// NewSessionAPIHandler создаёт новый SessionAPIHandler.
func NewSessionAPIHandler(resolver *auth.Resolver, sessions *auth.SessionManager, logger *slog.Logger) *SessionAPIHandler {
	return &SessionAPIHandler{
		resolver: resolver,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "ui.session_api")),
	}
}

// sessionResponse — проекция сессии без токенов.
type sessionResponse struct {
	User                      auth.User `json:"user"`
	ExpiresAt                 string    `json:"expiresAt"`
	Family                    string    `json:"family"`
	UsesChat                  bool      `json:"usesChat"`
	EstSuperviseur            bool      `json:"estSuperviseur"`
	EstSuperviseurResponsable bool      `json:"estSuperviseurResponsable"`
	ChatConnected             bool      `json:"chatConnected"`
}

// HandleSession возвращает текущую сессию советника.
// 401 — сессии нет или refresh не удался; 403 — пользователь не советник.
func (h *SessionAPIHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	res := h.resolver.Resolve(r.Context(), r)

	switch {
	case res.Corrupted:
		h.sessions.ClearSessionCookie(w, r)
		apierrors.Unauthorized(w, "Session absente")
		return
	case res.Session == nil:
		apierrors.Unauthorized(w, "Session absente")
		return
	case !res.Session.Usable():
		apierrors.Unauthorized(w, "Session expirée")
		return
	case !res.Session.User.EstConseiller:
		apierrors.Forbidden(w, "Utilisateur non conseiller")
		return
	}

	session := res.Session
	if res.Refreshed {
		if err := h.sessions.SetSessionCookie(w, r, session); err != nil {
			h.logger.Error("Ошибка обновления session cookie", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Erreur de session")
			return
		}
	}

	p := session.Principal()
	resp := sessionResponse{
		User:                      session.User,
		ExpiresAt:                 time.Unix(session.ExpiresAt, 0).UTC().Format(time.RFC3339),
		Family:                    roles.FamilyOf(p.Structure).String(),
		UsesChat:                  roles.UsesChatFeature(p),
		EstSuperviseur:            roles.IsSupervisor(p),
		EstSuperviseurResponsable: roles.IsResponsibleSupervisor(p),
		ChatConnected:             session.Chat != nil,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
