package pages

import (
	"net/url"

	"github.com/a-h/templ"
)

// LoginProvider — кнопка входа через провайдера идентичности.
type LoginProvider struct {
	ID       string
	LabelKey string
}

// LoginData — данные страницы входа.
type LoginData struct {
	Providers   []LoginProvider
	RedirectURL string
	Source      string
	// ErrorKey — ключ сообщения о неудачном входе (пусто — без ошибки).
	ErrorKey string
}

// Login — страница выбора провайдера входа.
func Login(data LoginData) templ.Component {
	return PublicLayout("", loginContent(data))
}

// providerHref — /login/{provider} с переносом redirectUrl и source.
func providerHref(provider, redirectURL, source string) string {
	u := url.URL{Path: "/login/" + url.PathEscape(provider)}
	q := url.Values{}
	if redirectURL != "" {
		q.Set("redirectUrl", redirectURL)
	}
	if source != "" {
		q.Set("source", source)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
