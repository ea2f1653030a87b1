package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/auth"
	uimiddleware "github.com/bigkaa/conseiller-web/internal/ui/middleware"
	"github.com/bigkaa/conseiller-web/internal/ui/pages"
)

// BackendAPI — ресурсы backend API, используемые страницами (apiclient.Client).
type BackendAPI interface {
	GetConseiller(ctx context.Context, accessToken, conseillerID string) (*apiclient.Conseiller, error)
	ListJeunes(ctx context.Context, accessToken, conseillerID string) ([]apiclient.Jeune, error)
	GetJeune(ctx context.Context, accessToken, jeuneID string) (*apiclient.JeuneDetail, error)
	ListRendezVous(ctx context.Context, accessToken, conseillerID string, from, to time.Time) ([]apiclient.RendezVous, error)
}

// PagesHandler — страницы за guard: портфель, карточка, agenda, сообщения.
type PagesHandler struct {
	api    BackendAPI
	now    func() time.Time
	logger *slog.Logger
}

// NewPagesHandler создаёт новый PagesHandler.
func NewPagesHandler(api BackendAPI, logger *slog.Logger) *PagesHandler {
	return &PagesHandler{
		api:    api,
		now:    time.Now,
		logger: logger.With(slog.String("component", "ui.pages")),
	}
}

// HandlePortefeuille обрабатывает GET / — список бенефициаров советника.
func (h *PagesHandler) HandlePortefeuille(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	principal := session.Principal()

	data := pages.PortefeuilleData{Principal: principal}

	// Агентство — только подпись; ошибка профиля страницу не ломает
	if conseiller, err := h.api.GetConseiller(ctx, session.AccessToken, principal.ID); err != nil {
		h.logAPIError("Ошибка загрузки профиля советника", err, principal.ID)
	} else if conseiller.Agence != nil {
		data.Agence = conseiller.Agence.Nom
	}

	jeunes, err := h.api.ListJeunes(ctx, session.AccessToken, principal.ID)
	if err != nil {
		h.logAPIError("Ошибка загрузки портфеля", err, principal.ID)
		data.LoadError = true
	}
	data.Jeunes = jeunes

	h.render(w, r, session, http.StatusOK, pages.Portefeuille(data))
}

// HandleJeune обрабатывает GET /mes-jeunes/{id} — карточка бенефициара.
// 404 backend API показывается как страница «не найдено».
func (h *PagesHandler) HandleJeune(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	principal := session.Principal()

	jeune, err := h.api.GetJeune(r.Context(), session.AccessToken, chi.URLParam(r, "id"))
	switch {
	case apiclient.IsNotFound(err):
		h.render(w, r, session, http.StatusNotFound, pages.NotFound("jeune.notfound"))
	case err != nil:
		h.logAPIError("Ошибка загрузки бенефициара", err, principal.ID)
		h.render(w, r, session, http.StatusBadGateway, pages.ErrorPage("error.api"))
	default:
		h.render(w, r, session, http.StatusOK, pages.JeuneDetail(jeune, roles.UsesChatFeature(principal)))
	}
}

// HandleAgenda обрабатывает GET /agenda — события недели.
// Параметр debut (YYYY-MM-DD) выбирает неделю; по умолчанию — текущая.
func (h *PagesHandler) HandleAgenda(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	principal := session.Principal()

	ref := h.now()
	if debut := r.URL.Query().Get("debut"); debut != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", debut, ref.Location()); err == nil {
			ref = parsed
		}
	}
	from := weekStart(ref)
	to := from.AddDate(0, 0, 7)

	data := pages.AgendaData{From: from, To: to}
	rdvs, err := h.api.ListRendezVous(r.Context(), session.AccessToken, principal.ID, from, to)
	if err != nil {
		h.logAPIError("Ошибка загрузки agenda", err, principal.ID)
		data.LoadError = true
	}
	data.RendezVous = rdvs

	h.render(w, r, session, http.StatusOK, pages.Agenda(data))
}

// HandleMessagerie обрабатывает GET /messagerie.
// Структуры без чата уводятся на портфель.
func (h *PagesHandler) HandleMessagerie(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	principal := session.Principal()

	if !roles.UsesChatFeature(principal) {
		http.Redirect(w, r, auth.DefaultLandingPath, http.StatusFound)
		return
	}

	data := pages.MessagerieData{ChatConnected: session.Chat != nil}
	jeunes, err := h.api.ListJeunes(r.Context(), session.AccessToken, principal.ID)
	if err != nil {
		h.logAPIError("Ошибка загрузки бесед", err, principal.ID)
		data.LoadError = true
	}
	data.Jeunes = jeunes

	h.render(w, r, session, http.StatusOK, pages.Messagerie(data))
}

// HandleReaffectation обрабатывает GET /reaffectation (только супервизоры).
func (h *PagesHandler) HandleReaffectation(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	principal := session.Principal()

	if !roles.IsSupervisor(principal) {
		http.Redirect(w, r, auth.DefaultLandingPath, http.StatusFound)
		return
	}

	data := pages.ReaffectationData{Principal: principal}
	jeunes, err := h.api.ListJeunes(r.Context(), session.AccessToken, principal.ID)
	if err != nil {
		h.logAPIError("Ошибка загрузки портфеля", err, principal.ID)
		data.LoadError = true
	}
	data.Jeunes = jeunes

	h.render(w, r, session, http.StatusOK, pages.Reaffectation(data))
}

// HandleNotFound — неизвестный маршрут за guard.
func (h *PagesHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, session, http.StatusNotFound, pages.NotFound("notfound.page"))
}

// session достаёт сессию, помещённую guard.
// Её отсутствие — ошибка маршрутизации: страница зарегистрирована вне guard.
func (h *PagesHandler) session(w http.ResponseWriter, r *http.Request) (*auth.SessionData, bool) {
	session := uimiddleware.SessionFromContext(r.Context())
	if session == nil {
		h.logger.Error("Страница вызвана без сессии", slog.String("path", r.URL.Path))
		login := auth.LoginRedirect(r)
		http.Redirect(w, r, login.Location(), login.StatusCode())
		return nil, false
	}
	return session, true
}

// render рендерит страницу в буфер и только затем пишет статус и тело:
// ошибка рендеринга не оставляет полуотправленный ответ.
func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, session *auth.SessionData, status int, content templ.Component) {
	principal := session.Principal()
	layout := pages.Layout(pages.LayoutData{
		UserName:   principal.DisplayName,
		ActivePath: r.URL.Path,
		ShowChat:   roles.UsesChatFeature(principal),
	}, content)

	var buf bytes.Buffer
	if err := layout.Render(r.Context(), &buf); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
			slog.String("user_id", principal.ID),
		)
		http.Error(w, "Erreur lors du rendu de la page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// logAPIError логирует ошибку backend API со статусом, если он известен.
func (h *PagesHandler) logAPIError(msg string, err error, userID string) {
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("user_id", userID),
	}
	if apiErr, ok := apiclient.AsAPIError(err); ok {
		attrs = append(attrs, slog.Int("status", apiErr.Status))
	}
	h.logger.Warn(msg, attrs...)
}

// weekStart возвращает понедельник 00:00 недели t.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
