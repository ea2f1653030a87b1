package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// JeuneDetail — карточка бенефициара.
func JeuneDetail(jeune *apiclient.JeuneDetail, showChat bool) templ.Component {
	name := jeune.FullName()
	return slots.Mount("fiche-jeune", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, text(name))
		pub.Publish(slots.Breadcrumbs, breadcrumbs([]crumb{{href: "/", key: "portefeuille.title"}, {name: name}}))
		pub.Publish(slots.PageHeader, nameHeading(name))
	}, jeuneContent(jeune, showChat))
}

// ficheField — строка карточки: ключ перевода и значение.
type ficheField struct {
	key   string
	value string
}

// ficheFields — заполненные поля карточки в порядке вывода.
func ficheFields(ctx context.Context, jeune *apiclient.JeuneDetail) []ficheField {
	application := i18n.T(ctx, "jeune.application.inactive")
	if jeune.IsActivated {
		application = i18n.T(ctx, "jeune.application.active")
	}

	all := []ficheField{
		{key: "jeune.email", value: jeune.Email},
		{key: "jeune.dispositif", value: jeune.Dispositif},
		{key: "jeune.situation", value: jeune.SituationCourante},
		{key: "jeune.id_partenaire", value: jeune.IDPartenaire},
		{key: "jeune.creation", value: formatActivity(jeune.CreationDate)},
		{key: "jeune.derniere_activite", value: formatActivity(jeune.LastActivity)},
		{key: "jeune.application", value: application},
	}
	fields := all[:0]
	for _, f := range all {
		if f.value != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// crumb — элемент хлебных крошек: ссылка по ключу перевода или текущая страница.
type crumb struct {
	href string
	key  string
	name string
}

// title — подпись элемента: перевод key, иначе name.
func (c crumb) title(ctx context.Context) string {
	if c.key != "" {
		return i18n.T(ctx, c.key)
	}
	return c.name
}
