package pages

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/conseiller-web/internal/apiclient"
	"github.com/bigkaa/conseiller-web/internal/domain/roles"
	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// testContext — контекст запроса с каталогом, языком и свежим реестром мест.
func testContext(t *testing.T, lang string) (context.Context, *slots.Registry) {
	t.Helper()
	bundle := i18n.NewBundle(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, i18n.LoadFromEmbedFS(bundle, slog.New(slog.NewTextHandler(io.Discard, nil))))

	reg := slots.NewRegistry()
	ctx := i18n.WithBundle(context.Background(), bundle)
	ctx = i18n.WithLang(ctx, lang)
	ctx = slots.WithRegistry(ctx, reg)
	return ctx, reg
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(ctx, &buf))
	return buf.String()
}

func sampleJeunes() []apiclient.Jeune {
	return []apiclient.Jeune{
		{ID: "j-1", FirstName: "Kenji", LastName: "Jirac", IsActivated: true, IDPartenaire: "123456", SituationCourante: "Emploi", MessagesNonLus: 2},
		{ID: "j-2", FirstName: "Nadia", LastName: "Sanfamiye", Dispositif: "PACEA"},
	}
}

func TestLayout_ContentPublishesIntoChrome(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	p := roles.Principal{Structure: roles.StructureMILO}

	out := render(t, ctx, Layout(LayoutData{UserName: "Nils Tavernier", ActivePath: "/", ShowChat: true},
		Portefeuille(PortefeuilleData{Principal: p, Jeunes: sampleJeunes()})))

	assert.Contains(t, out, "<title>Portefeuille - Espace conseiller</title>")
	assert.Contains(t, out, `<div class="page-heading"><h1>Portefeuille</h1></div>`)
	assert.Contains(t, out, `href="/messagerie"`)
	assert.Contains(t, out, `<li class="active"><a href="/">`)
	assert.Contains(t, out, "Nils Tavernier")
	// Не супервизор: место действий пусто
	assert.Contains(t, out, `<div class="page-actions"></div>`)
}

func TestLayout_EmptySlotsRenderNothing(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	content := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>contenu</p>")
		return err
	})

	out := render(t, ctx, Layout(LayoutData{Title: "Test"}, content))

	assert.Contains(t, out, "<title>Test - Espace conseiller</title>")
	assert.Contains(t, out, `<div class="breadcrumbs"></div>`)
	assert.Contains(t, out, `<div class="page-heading"></div>`)
	assert.Contains(t, out, "<p>contenu</p>")
	assert.NotContains(t, out, `href="/messagerie"`)
}

func TestLayout_ContentErrorStopsRender(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	boom := errors.New("boom")
	content := templ.ComponentFunc(func(context.Context, io.Writer) error { return boom })

	var buf bytes.Buffer
	err := Layout(LayoutData{}, content).Render(ctx, &buf)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, buf.String())
}

func TestPortefeuille_ColumnsByFamily(t *testing.T) {
	tests := []struct {
		name      string
		structure roles.Structure
		want      []string
		notWant   []string
	}{
		{
			name:      "mission locale",
			structure: roles.StructureMILO,
			want:      []string{"Dossier i-milo", "Situation", "Messages non lus", "123456"},
			notWant:   []string{"Identifiant France Travail", "Dispositif"},
		},
		{
			name:      "france travail CEJ",
			structure: roles.StructurePoleEmploi,
			want:      []string{"Identifiant France Travail", "Messages non lus"},
			notWant:   []string{"Dossier i-milo", "Dispositif"},
		},
		{
			name:      "pass emploi",
			structure: roles.StructurePoleEmploiBRSA,
			want:      []string{"Dispositif", "PACEA"},
			notWant:   []string{"Dossier i-milo", "Identifiant France Travail"},
		},
		{
			name:      "conseil départemental sans chat",
			structure: roles.StructureConseilDepartemental,
			want:      []string{"Dispositif"},
			notWant:   []string{"Messages non lus"},
		},
		{
			name:      "structure inconnue",
			structure: roles.Structure("NOUVELLE_STRUCTURE"),
			want:      []string{"Bénéficiaire", "Dernière activité", `data-family="unknown"`},
			notWant:   []string{"Dossier i-milo", "Identifiant France Travail", "Dispositif"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := testContext(t, "fr")
			out := render(t, ctx, Portefeuille(PortefeuilleData{
				Principal: roles.Principal{Structure: tt.structure},
				Jeunes:    sampleJeunes(),
			}))
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, out, s)
			}
			assert.Contains(t, out, `href="/mes-jeunes/j-1"`)
			assert.Contains(t, out, "Jirac Kenji")
		})
	}
}

func TestPortefeuille_InactiveRowAndEscapedLink(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	out := render(t, ctx, Portefeuille(PortefeuilleData{
		Principal: roles.Principal{Structure: roles.StructureMILO},
		Jeunes:    []apiclient.Jeune{{ID: "a/b", FirstName: "Kenji", LastName: "Jirac"}},
	}))

	assert.Contains(t, out, `<tr class="inactive">`)
	assert.Contains(t, out, `<a href="/mes-jeunes/a%2Fb">Jirac Kenji</a>`)
	assert.Contains(t, out, `data-family="mission_locale"`)
}

func TestLayout_LanguageSwitch(t *testing.T) {
	ctx, _ := testContext(t, "en")
	out := render(t, ctx, Layout(LayoutData{}, text("contenu")))

	assert.Contains(t, out, `<html lang="en">`)
	assert.Contains(t, out, `<button type="submit" name="lang" value="fr">fr</button>`)
	assert.Contains(t, out, `<button type="submit" name="lang" value="en" disabled>en</button>`)
	assert.Contains(t, out, `<main class="page-content">contenu</main>`)
}

func TestPortefeuille_SupervisorActions(t *testing.T) {
	ctx, reg := testContext(t, "fr")
	p := roles.Principal{Structure: roles.StructurePoleEmploi, EstSuperviseur: true}

	render(t, ctx, Portefeuille(PortefeuilleData{Principal: p}))

	require.Equal(t, slots.Published, reg.State(slots.PageActions))
	actions := render(t, ctx, reg.Fragment(slots.PageActions))
	assert.Contains(t, actions, `href="/reaffectation"`)
	assert.NotContains(t, actions, "Superviseur responsable")

	ctx, reg = testContext(t, "fr")
	p.EstSuperviseurResponsable = true
	render(t, ctx, Portefeuille(PortefeuilleData{Principal: p}))
	assert.Contains(t, render(t, ctx, reg.Fragment(slots.PageActions)), "Superviseur responsable")
}

func TestPortefeuille_EmptyAndError(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	out := render(t, ctx, Portefeuille(PortefeuilleData{}))
	assert.Contains(t, out, "aucun bénéficiaire")

	out = render(t, ctx, Portefeuille(PortefeuilleData{LoadError: true}))
	assert.Contains(t, out, "banner-error")
}

func TestJeuneDetail_PublishesTitleAndBreadcrumbs(t *testing.T) {
	ctx, reg := testContext(t, "fr")
	jeune := &apiclient.JeuneDetail{
		Jeune: apiclient.Jeune{ID: "j-1", FirstName: "Kenji", LastName: "Jirac", IsActivated: true},
		Email: "kenji@example.com",
	}

	out := render(t, ctx, JeuneDetail(jeune, true))

	assert.Contains(t, out, "kenji@example.com")
	assert.Contains(t, out, "Activée")
	assert.Contains(t, out, `href="/messagerie"`)
	assert.Equal(t, "Jirac Kenji", render(t, ctx, reg.Fragment(slots.PageTitle)))
	crumbs := render(t, ctx, reg.Fragment(slots.Breadcrumbs))
	assert.Contains(t, crumbs, `<a href="/">Portefeuille</a>`)
	assert.Contains(t, crumbs, `<span aria-current="page">Jirac Kenji</span>`)
}

func TestJeuneDetail_EscapesData(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	jeune := &apiclient.JeuneDetail{Jeune: apiclient.Jeune{ID: "j-1", FirstName: "<script>", LastName: "X"}}

	out := render(t, ctx, JeuneDetail(jeune, false))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, `href="/messagerie"`)
}

func TestNotFound(t *testing.T) {
	ctx, reg := testContext(t, "en")
	out := render(t, ctx, NotFound("jeune.notfound"))

	assert.Contains(t, out, "no longer in your portfolio")
	assert.Equal(t, "Page not found", render(t, ctx, reg.Fragment(slots.PageTitle)))
}

func TestAgenda_GroupsByDay(t *testing.T) {
	ctx, reg := testContext(t, "fr")
	from := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	data := AgendaData{
		From: from,
		To:   from.AddDate(0, 0, 7),
		RendezVous: []apiclient.RendezVous{
			{ID: "2", Date: from.Add(34 * time.Hour), Type: apiclient.TypeRendezVous{Label: "Atelier"}},
			{ID: "1", Date: from.Add(9*time.Hour + 30*time.Minute), Duration: 30, Type: apiclient.TypeRendezVous{Label: "Entretien individuel"}, Title: "Point mensuel"},
		},
	}

	out := render(t, ctx, Agenda(data))

	first := bytes.Index([]byte(out), []byte("12/10/2026"))
	second := bytes.Index([]byte(out), []byte("13/10/2026"))
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, out, "09:30")
	assert.Contains(t, out, "30 min")
	assert.Contains(t, out, "Entretien individuel - Point mensuel")

	heading := render(t, ctx, reg.Fragment(slots.PageHeader))
	assert.Contains(t, heading, "Semaine du 12/10/2026 au 18/10/2026")
}

func TestMessagerie_UnreadFirst(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	jeunes := sampleJeunes()
	jeunes[0], jeunes[1] = jeunes[1], jeunes[0]

	out := render(t, ctx, Messagerie(MessagerieData{Jeunes: jeunes, ChatConnected: true}))

	assert.Less(t, bytes.Index([]byte(out), []byte("Jirac Kenji")), bytes.Index([]byte(out), []byte("Sanfamiye Nadia")))
	assert.Contains(t, out, "2 non lu(s)")
	assert.NotContains(t, out, "indisponible")
}

func TestMessagerie_NoChatCredential(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	out := render(t, ctx, Messagerie(MessagerieData{}))
	assert.Contains(t, out, "momentanément indisponible")
}

func TestReaffectation_ResponsibleHint(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	p := roles.Principal{EstSuperviseur: true}

	out := render(t, ctx, Reaffectation(ReaffectationData{Principal: p, Jeunes: sampleJeunes()}))
	assert.Contains(t, out, `value="j-1"`)
	assert.NotContains(t, out, "superviseur responsable")

	p.EstSuperviseurResponsable = true
	out = render(t, ctx, Reaffectation(ReaffectationData{Principal: p}))
	assert.Contains(t, out, "superviseur responsable")
}

func TestLogin_ProviderLinksCarryParams(t *testing.T) {
	ctx, _ := testContext(t, "fr")
	out := render(t, ctx, Login(LoginData{
		Providers:   []LoginProvider{{ID: "milo", LabelKey: "login.provider.milo"}},
		RedirectURL: "/agenda",
		Source:      "notif-mail",
		ErrorKey:    "login.error.failed",
	}))

	assert.Contains(t, out, `href="/login/milo?redirectUrl=%2Fagenda&amp;source=notif-mail"`)
	assert.Contains(t, out, "Mission Locale (i-milo)")
	assert.Contains(t, out, "La connexion a échoué")
	assert.NotContains(t, out, `action="/logout"`)
}

func TestProviderHref_NoParams(t *testing.T) {
	assert.Equal(t, "/login/france-travail", providerHref("france-travail", "", ""))
}

func TestFormatActivity(t *testing.T) {
	assert.Equal(t, "-", formatActivity(""))
	assert.Equal(t, "13/10/2026", formatActivity("2026-10-13T09:30:00Z"))
	assert.Equal(t, "hier", formatActivity("hier"))
}

func TestErrorPage(t *testing.T) {
	ctx, reg := testContext(t, "fr")
	out := render(t, ctx, ErrorPage("error.internal"))
	assert.Contains(t, out, "Une erreur technique est survenue.")
	assert.Equal(t, "Erreur", render(t, ctx, reg.Fragment(slots.PageTitle)))
}
