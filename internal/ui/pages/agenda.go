package pages

import (
	"context"
	"sort"
	"time"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

const dayLayout = "02/01/2006"

// AgendaData — данные недели agenda.
type AgendaData struct {
	From       time.Time
	To         time.Time
	RendezVous []apiclient.RendezVous
	LoadError  bool
}

// Agenda — события советника за неделю, сгруппированные по дням.
func Agenda(data AgendaData) templ.Component {
	return slots.Mount("agenda", func(ctx context.Context, pub *slots.Publisher) {
		period := i18n.Tf(ctx, "agenda.period", data.From.Format(dayLayout), data.To.AddDate(0, 0, -1).Format(dayLayout))
		pub.Publish(slots.PageTitle, translated("agenda.title"))
		pub.Publish(slots.PageHeader, heading("agenda.title", period))
	}, agendaContent(data))
}

// agendaDay — события одного дня.
type agendaDay struct {
	label      string
	rendezVous []apiclient.RendezVous
}

// groupByDay сортирует события по времени и группирует по дате.
func groupByDay(rdvs []apiclient.RendezVous) []agendaDay {
	sorted := make([]apiclient.RendezVous, len(rdvs))
	copy(sorted, rdvs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var days []agendaDay
	for _, rdv := range sorted {
		label := rdv.Date.Format(dayLayout)
		if len(days) == 0 || days[len(days)-1].label != label {
			days = append(days, agendaDay{label: label})
		}
		last := &days[len(days)-1]
		last.rendezVous = append(last.rendezVous, rdv)
	}
	return days
}

// rendezVousLabel — тип события и, если есть, его название.
func rendezVousLabel(rdv apiclient.RendezVous) string {
	if rdv.Title == "" {
		return rdv.Type.Label
	}
	return rdv.Type.Label + " - " + rdv.Title
}
