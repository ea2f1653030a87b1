// Пакет pages — HTML-страницы интерфейса советника (templ).
// Тексты берутся из i18n по языку запроса; страницы публикуют
// заголовок, шапку, хлебные крошки и действия в места layout.
package pages

import (
	"context"

	"github.com/a-h/templ"

	"github.com/bigkaa/conseiller-web/internal/ui/slots"
)

// titleSeparator — разделитель частей <title>.
const titleSeparator = " - "

// supportedLangs — языки переключателя.
var supportedLangs = []string{"fr", "en"}

// LayoutData — данные chrome страницы.
type LayoutData struct {
	// Title — заголовок вкладки, если место page-title пусто.
	Title string
	// UserName — имя советника в шапке.
	UserName string
	// ActivePath — текущий раздел навигации.
	ActivePath string
	// ShowChat — пункт «Messagerie» в навигации.
	ShowChat bool
}

// navItem — пункт основной навигации.
type navItem struct {
	path string
	key  string
}

func navItems(showChat bool) []navItem {
	items := []navItem{
		{path: "/", key: "nav.portefeuille"},
		{path: "/agenda", key: "nav.agenda"},
	}
	if showChat {
		items = append(items, navItem{path: "/messagerie", key: "nav.messagerie"})
	}
	return items
}

// Layout — страница с chrome: навигация, места slots и контент.
// Контент рендерится первым, чтобы его публикации попали в места layout.
func Layout(data LayoutData, content templ.Component) templ.Component {
	return slots.ContentFirst(content, func(body templ.Component) templ.Component {
		return layoutFrame(data, body)
	})
}

// PublicLayout — страница без навигации (вход, ошибки до входа).
func PublicLayout(title string, content templ.Component) templ.Component {
	return slots.ContentFirst(content, func(body templ.Component) templ.Component {
		return publicFrame(title, body)
	})
}

func slotPublished(ctx context.Context, slot slots.ID) bool {
	reg := slots.FromContext(ctx)
	return reg != nil && reg.State(slot) == slots.Published
}
