package pages

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// PortefeuilleData — данные страницы портфеля.
type PortefeuilleData struct {
	Principal roles.Principal
	// Agence — название агентства советника (может быть пустым).
	Agence string
	Jeunes []apiclient.Jeune
	// LoadError — портфель не загружен, вместо таблицы показывается баннер.
	LoadError bool
}

// column — колонка таблицы портфеля.
type column struct {
	key   string
	value func(j apiclient.Jeune) string
}

// columnsFor выбирает колонки по семейству структуры советника.
func columnsFor(p roles.Principal) []column {
	cols := []column{{key: "portefeuille.col.nom", value: func(j apiclient.Jeune) string { return j.FullName() }}}

	switch roles.FamilyOf(p.Structure) {
	case roles.FamilyMissionLocale:
		cols = append(cols,
			column{key: "portefeuille.col.situation", value: func(j apiclient.Jeune) string { return j.SituationCourante }},
			column{key: "portefeuille.col.dossier_milo", value: func(j apiclient.Jeune) string { return j.IDPartenaire }},
		)
	case roles.FamilyFranceTravailCEJ:
		cols = append(cols,
			column{key: "portefeuille.col.identifiant_ft", value: func(j apiclient.Jeune) string { return j.IDPartenaire }},
		)
	case roles.FamilyPassEmploi:
		cols = append(cols,
			column{key: "portefeuille.col.dispositif", value: func(j apiclient.Jeune) string { return j.Dispositif }},
		)
	default:
		// Неизвестная структура: только общие колонки
	}

	cols = append(cols, column{key: "portefeuille.col.derniere_activite", value: func(j apiclient.Jeune) string {
		return formatActivity(j.LastActivity)
	}})

	if roles.UsesChatFeature(p) {
		cols = append(cols, column{key: "portefeuille.col.messages", value: func(j apiclient.Jeune) string {
			return strconv.Itoa(j.MessagesNonLus)
		}})
	}
	return cols
}

// Portefeuille — список бенефициаров советника.
func Portefeuille(data PortefeuilleData) templ.Component {
	return slots.Mount("portefeuille", func(_ context.Context, pub *slots.Publisher) {
		pub.Publish(slots.PageTitle, translated("portefeuille.title"))
		pub.Publish(slots.PageHeader, heading("portefeuille.title", data.Agence))
		if roles.IsSupervisor(data.Principal) {
			pub.Publish(slots.PageActions, supervisorActions(data.Principal))
		}
	}, portefeuilleContent(data))
}

// jeuneURL — ссылка на карточку бенефициара.
func jeuneURL(id string) templ.SafeURL {
	return templ.URL("/mes-jeunes/" + url.PathEscape(id))
}

// formatActivity — дата последней активности в формате dd/mm/yyyy.
func formatActivity(raw string) string {
	if raw == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Format("02/01/2006")
}
