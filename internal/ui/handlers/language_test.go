package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/conseiller-web/internal/ui/i18n"
)

func postLanguage(lang, referer string) *httptest.ResponseRecorder {
	form := url.Values{"lang": {lang}}
	req := httptest.NewRequest(http.MethodPost, "/set-language", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	rec := httptest.NewRecorder()
	HandleSetLanguage(rec, req)
	return rec
}

func TestHandleSetLanguage(t *testing.T) {
	tests := []struct {
		name     string
		lang     string
		referer  string
		wantLang string
		wantLoc  string
	}{
		{"anglais", "en", "http://example.com/agenda?debut=2026-10-12", "en", "/agenda?debut=2026-10-12"},
		{"français", "fr", "", "fr", "/"},
		{"langue inconnue", "de", "/mes-jeunes/j-1", "fr", "/mes-jeunes/j-1"},
		{"referer externe", "en", "https://evil.example/phish", "en", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postLanguage(tt.lang, tt.referer)

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			c := findCookie(rec, i18n.LangCookieName)
			require.NotNil(t, c)
			assert.Equal(t, tt.wantLang, c.Value)
			assert.Equal(t, "/", c.Path)
		})
	}
}
