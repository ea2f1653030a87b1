package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// ErrorPage — содержимое страницы технической ошибки.
func ErrorPage(messageKey string) templ.Component {
	return slots.Mount("erreur", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, translated("error.title"))
		pub.Publish(slots.PageHeader, heading("error.title", ""))
	}, ErrorBanner(messageKey))
}

// NotFound — содержимое страницы 404.
func NotFound(messageKey string) templ.Component {
	return slots.Mount("introuvable", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, translated("notfound.title"))
		pub.Publish(slots.PageHeader, heading("notfound.title", ""))
	}, notFoundContent(messageKey))
}
