// language.go — обработчик переключения языка UI.
package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/bigkaa/conseiller-web/internal/ui/auth"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
)

// HandleSetLanguage обрабатывает POST /set-language.
// Устанавливает cookie "lang" и перенаправляет обратно.
// Параметр lang: "fr" или "en" (из form или query).
func HandleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := r.FormValue("lang")

	// Валидация: только поддерживаемые языки
	if !i18n.IsSupported(lang) {
		lang = i18n.FallbackLang
	}

	// Устанавливаем cookie "lang" на 1 год
	http.SetCookie(w, &http.Cookie{
		Name:     i18n.LangCookieName,
		Value:    lang,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: false, // JS может читать для UI-логики
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
	})

	http.Redirect(w, r, backTarget(r), http.StatusSeeOther)
}

// backTarget — путь из Referer, если он локальный, иначе корень.
func backTarget(r *http.Request) string {
	referer := r.Header.Get("Referer")
	if referer == "" {
		return auth.DefaultLandingPath
	}
	u, err := url.Parse(referer)
	if err != nil {
		return auth.DefaultLandingPath
	}
	// Абсолютный Referer допускается только для своего хоста
	if u.Host != "" && u.Host != r.Host {
		return auth.DefaultLandingPath
	}
	target := u.RequestURI()
	if !auth.IsSafeRedirect(target) {
		return auth.DefaultLandingPath
	}
	return target
}
