package i18n

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	b := NewBundle(nil)
	require.NoError(t, b.LoadMessages("fr", []byte(`{"hello": "Bonjour", "count": "%s éléments", "only.fr": "Seulement en français"}`)))
	require.NoError(t, b.LoadMessages("en", []byte(`{"hello": "Hello", "count": "%s items"}`)))
	return b
}

func TestTranslate(t *testing.T) {
	b := testBundle(t)

	tests := []struct {
		lang, key, want string
	}{
		{"fr", "hello", "Bonjour"},
		{"en", "hello", "Hello"},
		{"en", "only.fr", "Seulement en français"},
		{"de", "hello", "Bonjour"},
		{"en", "missing.key", "missing.key"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Translate(tt.lang, tt.key), tt.lang+"/"+tt.key)
	}
}

func TestTranslatef(t *testing.T) {
	b := testBundle(t)

	assert.Equal(t, "3 items", b.Translatef("en", "count", "3"))
	assert.Equal(t, "Bonjour", b.Translatef("fr", "hello"))
}

func TestLoadMessages_InvalidJSON(t *testing.T) {
	b := NewBundle(nil)
	assert.Error(t, b.LoadMessages("fr", []byte(`{"hello":`)))
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "hello", T(ctx, "hello"), "без каталога ключ возвращается как есть")
	assert.Equal(t, FallbackLang, LangFromContext(ctx))

	ctx = WithLang(WithBundle(ctx, testBundle(t)), "en")
	assert.Equal(t, "Hello", T(ctx, "hello"))
	assert.Equal(t, "2 items", Tf(ctx, "count", "2"))
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"en-US,en;q=0.9", "en"},
		{"fr-FR,fr;q=0.9,en;q=0.8", "fr"},
		{"de-DE", "fr"},
		{"", "fr"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchLanguage(tt.header), tt.header)
	}
}

func TestMiddleware_DetectsLanguage(t *testing.T) {
	bundle := testBundle(t)
	var got string
	h := Middleware(bundle, "fr")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "hello")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "Bonjour", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-GB")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "Hello", got)

	// cookie важнее Accept-Language
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-GB")
	req.AddCookie(&http.Cookie{Name: LangCookieName, Value: "fr"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "Bonjour", got)
}

func TestLocales_SameKeys(t *testing.T) {
	b := NewBundle(nil)
	require.NoError(t, LoadFromEmbedFS(b, slog.New(slog.NewTextHandler(io.Discard, nil))))

	fr := b.catalogs["fr"]
	en := b.catalogs["en"]
	require.NotEmpty(t, fr)
	for key := range fr {
		assert.Contains(t, en, key, "нет перевода en")
	}
	for key := range en {
		assert.Contains(t, fr, key, "нет перевода fr")
	}
}
