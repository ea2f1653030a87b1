package pages

import (
	"context"
	"sort"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// MessagerieData — данные страницы сообщений.
type MessagerieData struct {
	Jeunes []apiclient.Jeune
	// ChatConnected — в сессии есть учётные данные чата.
	ChatConnected bool
	LoadError     bool
}

// Messagerie — список бесед: бенефициары с непрочитанными сообщениями первыми.
func Messagerie(data MessagerieData) templ.Component {
	return slots.Mount("messagerie", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, translated("messagerie.title"))
		pub.Publish(slots.PageHeader, heading("messagerie.title", ""))
	}, messagerieContent(data))
}

// byUnread — копия списка, отсортированная по числу непрочитанных.
func byUnread(jeunes []apiclient.Jeune) []apiclient.Jeune {
	sorted := make([]apiclient.Jeune, len(jeunes))
	copy(sorted, jeunes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MessagesNonLus > sorted[j].MessagesNonLus })
	return sorted
}

// ReaffectationData — данные страницы переназначения бенефициаров.
type ReaffectationData struct {
	Principal roles.Principal
	Jeunes    []apiclient.Jeune
	LoadError bool
}

// Reaffectation — выбор бенефициаров для переназначения (только супервизоры).
func Reaffectation(data ReaffectationData) templ.Component {
	return slots.Mount("reaffectation", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, translated("reaffectation.title"))
		pub.Publish(slots.PageHeader, heading("reaffectation.title", ""))
		pub.Publish(slots.Breadcrumbs, breadcrumbs([]crumb{{href: "/", key: "portefeuille.title"}, {key: "reaffectation.title"}}))
	}, reaffectationContent(data))
}
