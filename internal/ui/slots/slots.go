// Пакет slots — именованные места layout (заголовок, шапка, хлебные крошки,
// действия), которые заполняет контент страницы.
//
// Реестр создаётся на каждый запрос. Контент рендерится первым и публикует
// фрагменты; layout рендерится вторым и выводит их через Outlet.
// Публикация заменяет фрагмент; снятие публикатора очищает только те
// места, которые он всё ещё занимает.
package slots

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/a-h/templ"
)

// ID — идентификатор места в layout.
type ID string

// Места layout.
const (
	PageTitle   ID = "page-title"
	PageHeader  ID = "page-header"
	Breadcrumbs ID = "breadcrumbs"
	PageActions ID = "page-actions"
)

// State — состояние места.
type State int

const (
	// Empty — место пусто, outlet ничего не выводит.
	Empty State = iota
	// Published — место занято фрагментом.
	Published
)

// entry — текущий фрагмент места и его владелец.
type entry struct {
	publisher string
	fragment  templ.Component
}

// Registry — реестр мест одного запроса.
type Registry struct {
	mu      sync.Mutex
	entries map[ID]entry
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]entry)}
}

// Publish помещает фрагмент в место, заменяя предыдущий.
// nil-фрагмент снимает публикацию этого публикатора с места.
func (r *Registry) Publish(slot ID, publisher string, fragment templ.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fragment == nil {
		if e, ok := r.entries[slot]; ok && e.publisher == publisher {
			delete(r.entries, slot)
		}
		return
	}
	r.entries[slot] = entry{publisher: publisher, fragment: fragment}
}

// Unmount снимает все публикации публикатора.
// Места, перезаписанные другим публикатором, не затрагиваются.
func (r *Registry) Unmount(publisher string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for slot, e := range r.entries {
		if e.publisher == publisher {
			delete(r.entries, slot)
		}
	}
}

// State возвращает состояние места.
func (r *Registry) State(slot ID) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[slot]; ok {
		return Published
	}
	return Empty
}

// Fragment возвращает текущий фрагмент места или nil.
func (r *Registry) Fragment(slot ID) templ.Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.entries[slot].fragment
}

// Publisher возвращает handle для публикации от имени publisher.
func (r *Registry) Publisher(publisher string) *Publisher {
	return &Publisher{registry: r, id: publisher}
}

// Publisher — handle одного контентного блока.
type Publisher struct {
	registry *Registry
	id       string
}

// Publish помещает фрагмент в место.
func (p *Publisher) Publish(slot ID, fragment templ.Component) {
	p.registry.Publish(slot, p.id, fragment)
}

// Unmount снимает все публикации этого блока.
func (p *Publisher) Unmount() {
	p.registry.Unmount(p.id)
}

// Outlet — компонент layout, выводящий текущий фрагмент места.
// Фрагмент определяется в момент рендера, а не при создании компонента.
func Outlet(slot ID) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		reg := FromContext(ctx)
		if reg == nil {
			return nil
		}
		fragment := reg.Fragment(slot)
		if fragment == nil {
			return nil
		}
		return fragment.Render(ctx, w)
	})
}

// Mount — контентный блок с публикациями.
// publish регистрирует фрагменты до рендера body. Если body возвращает
// ошибку, блок считается разобранным и его публикации снимаются.
func Mount(publisher string, publish func(ctx context.Context, pub *Publisher), body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		reg := FromContext(ctx)
		if reg == nil {
			// Без реестра публикации некуда деть: рендерим только тело
			reg = NewRegistry()
		}
		pub := reg.Publisher(publisher)
		if publish != nil {
			publish(ctx, pub)
		}
		if err := body.Render(ctx, w); err != nil {
			pub.Unmount()
			return err
		}
		return nil
	})
}

// ContentFirst рендерит content в буфер раньше frame, чтобы публикации
// content попали в места frame. frame получает уже готовую разметку content.
// При ошибке content в w ничего не пишется.
func ContentFirst(content templ.Component, frame func(body templ.Component) templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if err := content.Render(ctx, &buf); err != nil {
			return err
		}
		return frame(templ.Raw(buf.String())).Render(ctx, w)
	})
}

// --- Контекст запроса ---

type contextKey struct{}

// WithRegistry помещает реестр в контекст.
func WithRegistry(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext извлекает реестр из контекста (nil, если его нет).
func FromContext(ctx context.Context) *Registry {
	r, _ := ctx.Value(contextKey{}).(*Registry)
	return r
}

// Middleware создаёт свежий реестр на каждый запрос.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRegistry(r.Context(), NewRegistry())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
