package slots

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// text — фрагмент с фиксированным текстом.
func text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

// renderOutlet рендерит outlet места в строку.
func renderOutlet(t *testing.T, ctx context.Context, slot ID) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Outlet(slot).Render(ctx, &buf))
	return buf.String()
}

func TestRegistry_EmptyOutletRendersNothing(t *testing.T) {
	ctx := WithRegistry(context.Background(), NewRegistry())

	assert.Empty(t, renderOutlet(t, ctx, PageHeader))
	assert.Equal(t, Empty, FromContext(ctx).State(PageHeader))
}

func TestRegistry_PublishAndRender(t *testing.T) {
	reg := NewRegistry()
	ctx := WithRegistry(context.Background(), reg)

	reg.Publish(PageTitle, "portefeuille", text("Portefeuille"))

	assert.Equal(t, Published, reg.State(PageTitle))
	assert.Equal(t, "Portefeuille", renderOutlet(t, ctx, PageTitle))
	assert.Empty(t, renderOutlet(t, ctx, PageActions))
}

func TestRegistry_PublishReplaces(t *testing.T) {
	reg := NewRegistry()
	ctx := WithRegistry(context.Background(), reg)

	reg.Publish(PageHeader, "a", text("A"))
	reg.Publish(PageHeader, "a", text("A2"))
	assert.Equal(t, "A2", renderOutlet(t, ctx, PageHeader))

	reg.Publish(PageHeader, "b", text("B"))
	assert.Equal(t, "B", renderOutlet(t, ctx, PageHeader))
}

func TestRegistry_UnmountClearsOwnSlotsOnly(t *testing.T) {
	reg := NewRegistry()
	ctx := WithRegistry(context.Background(), reg)

	reg.Publish(PageTitle, "a", text("title A"))
	reg.Publish(PageHeader, "a", text("header A"))
	reg.Publish(PageHeader, "b", text("header B"))
	reg.Publish(Breadcrumbs, "b", text("crumbs B"))

	reg.Unmount("a")

	assert.Equal(t, Empty, reg.State(PageTitle))
	assert.Equal(t, "header B", renderOutlet(t, ctx, PageHeader), "место, перезаписанное b, не очищается")
	assert.Equal(t, "crumbs B", renderOutlet(t, ctx, Breadcrumbs))

	reg.Unmount("b")
	assert.Equal(t, Empty, reg.State(PageHeader))
	assert.Equal(t, Empty, reg.State(Breadcrumbs))
}

func TestRegistry_PublishNilWithdraws(t *testing.T) {
	reg := NewRegistry()

	reg.Publish(PageActions, "a", text("A"))
	reg.Publish(PageActions, "b", nil)
	assert.Equal(t, Published, reg.State(PageActions), "чужой nil не снимает публикацию")

	reg.Publish(PageActions, "a", nil)
	assert.Equal(t, Empty, reg.State(PageActions))
}

func TestRegistry_ConcurrentPublish(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pub := reg.Publisher("p")
			pub.Publish(PageTitle, text("t"))
			if i%2 == 0 {
				pub.Unmount()
			}
		}(i)
	}
	wg.Wait()

	// Состояние согласовано: либо пусто, либо фрагмент публикатора p
	if reg.State(PageTitle) == Published {
		assert.NotNil(t, reg.Fragment(PageTitle))
	}
}

func TestOutlet_NoRegistry(t *testing.T) {
	assert.Empty(t, renderOutlet(t, context.Background(), PageTitle))
}

func TestMount_PublishesBeforeBody(t *testing.T) {
	reg := NewRegistry()
	ctx := WithRegistry(context.Background(), reg)

	var stateInBody State
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		stateInBody = reg.State(PageTitle)
		_, err := io.WriteString(w, "<section>fiche</section>")
		return err
	})
	unit := Mount("jeune", func(_ context.Context, pub *Publisher) {
		pub.Publish(PageTitle, text("Kenji Jirac"))
	}, body)

	var buf bytes.Buffer
	require.NoError(t, unit.Render(ctx, &buf))

	assert.Equal(t, "<section>fiche</section>", buf.String())
	assert.Equal(t, Published, stateInBody)
	assert.Equal(t, "Kenji Jirac", renderOutlet(t, ctx, PageTitle))
}

func TestMount_ErrorUnmounts(t *testing.T) {
	reg := NewRegistry()
	ctx := WithRegistry(context.Background(), reg)
	reg.Publish(Breadcrumbs, "layout", text("Accueil"))

	errBoom := errors.New("boom")
	unit := Mount("jeune", func(_ context.Context, pub *Publisher) {
		pub.Publish(PageTitle, text("Kenji"))
		pub.Publish(PageHeader, text("header"))
	}, templ.ComponentFunc(func(context.Context, io.Writer) error { return errBoom }))

	err := unit.Render(ctx, io.Discard)
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, Empty, reg.State(PageTitle))
	assert.Equal(t, Empty, reg.State(PageHeader))
	assert.Equal(t, Published, reg.State(Breadcrumbs))
}

func TestMount_WithoutRegistry(t *testing.T) {
	unit := Mount("jeune", func(_ context.Context, pub *Publisher) {
		pub.Publish(PageTitle, text("Kenji"))
	}, text("fiche"))

	var buf bytes.Buffer
	require.NoError(t, unit.Render(context.Background(), &buf))
	assert.Equal(t, "fiche", buf.String())
}

func TestContentFirst_FrameSeesPublications(t *testing.T) {
	ctx := WithRegistry(context.Background(), NewRegistry())
	content := Mount("page", func(_ context.Context, pub *Publisher) {
		pub.Publish(PageHeader, text("<h1>Agenda</h1>"))
	}, text("<p>semaine</p>"))

	frame := func(body templ.Component) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			if err := Outlet(PageHeader).Render(ctx, w); err != nil {
				return err
			}
			return body.Render(ctx, w)
		})
	}

	var buf bytes.Buffer
	require.NoError(t, ContentFirst(content, frame).Render(ctx, &buf))
	assert.Equal(t, "<h1>Agenda</h1><p>semaine</p>", buf.String())
}

func TestContentFirst_ContentErrorWritesNothing(t *testing.T) {
	errBoom := errors.New("boom")
	content := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, _ = io.WriteString(w, "<p>partiel</p>")
		return errBoom
	})
	called := false
	frame := func(body templ.Component) templ.Component {
		called = true
		return body
	}

	var buf bytes.Buffer
	err := ContentFirst(content, frame).Render(context.Background(), &buf)
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, buf.String())
	assert.False(t, called)
}

func TestMiddleware_FreshRegistryPerRequest(t *testing.T) {
	var seen []*Registry
	handler := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		reg := FromContext(r.Context())
		require.NotNil(t, reg)
		assert.Equal(t, Empty, reg.State(PageTitle), "реестр не переносит публикации между запросами")
		reg.Publish(PageTitle, "page", text("x"))
		seen = append(seen, reg)
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}

	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}
