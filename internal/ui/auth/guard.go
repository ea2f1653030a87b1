// guard.go — решение о доступе к защищённым маршрутам и страницам входа.
// Guard не пишет в ответ: он возвращает Outcome, а запись cookie и redirect
// выполняет HTTP-слой.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Маршруты протокола redirect.
const (
	// LoginPath — страница входа.
	LoginPath = "/login"
	// FederatedLogoutPath — завершение сессии у IdP.
	FederatedLogoutPath = "/api/auth/federated-logout"
	// DefaultLandingPath — страница после входа по умолчанию.
	DefaultLandingPath = "/"
)

// Параметры query страницы входа.
const (
	QueryRedirectURL = "redirectUrl"
	QuerySource      = "source"
)

// Redirect — описание redirect-ответа.
type Redirect struct {
	// Path — относительный путь назначения (декодированный).
	Path string
	// RawPath — исходное кодирование Path (например, с %2F); пусто, если
	// совпадает с кодированием по умолчанию.
	RawPath string
	// RawQuery — исходная query назначения, порядок параметров сохраняется.
	RawQuery string
	// Query — параметры, добавляемые после RawQuery (может быть пустым).
	Query url.Values
	// Fragment и RawFragment — фрагмент назначения.
	Fragment    string
	RawFragment string
	// Permanent — 301 вместо 302.
	Permanent bool
}

// Location возвращает значение заголовка Location.
func (r *Redirect) Location() string {
	u := url.URL{
		Path:        r.Path,
		RawPath:     r.RawPath,
		RawQuery:    r.RawQuery,
		Fragment:    r.Fragment,
		RawFragment: r.RawFragment,
	}
	if len(r.Query) > 0 {
		if u.RawQuery != "" {
			u.RawQuery += "&"
		}
		u.RawQuery += r.Query.Encode()
	}
	return u.String()
}

// StatusCode возвращает HTTP-статус redirect.
func (r *Redirect) StatusCode() int {
	if r.Permanent {
		return http.StatusMovedPermanently
	}
	return http.StatusFound
}

// Outcome — результат guard: либо Proceed с сессией, либо Redirect.
// Ровно одно из двух; проверяется через Session() и Redirect().
type Outcome struct {
	session  *SessionData
	redirect *Redirect
	// Resolution — результат резолвера, на котором основано решение.
	// HTTP-слой использует его для записи или удаления cookie.
	Resolution Resolution
}

// Session возвращает сессию, если запрос можно обслуживать.
func (o Outcome) Session() (*SessionData, bool) {
	if o.redirect != nil {
		return nil, false
	}
	return o.session, o.session != nil
}

// Redirect возвращает redirect, если запрос обслуживать нельзя.
func (o Outcome) Redirect() (*Redirect, bool) {
	return o.redirect, o.redirect != nil
}

// Guard применяет правила доступа к разрешённой сессии.
type Guard struct {
	resolver *Resolver
}

// NewGuard создаёт guard поверх резолвера сессии.
func NewGuard(resolver *Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// RequireSession решает судьбу запроса к защищённому маршруту:
//   - нет сессии — на /login с redirectUrl исходного запроса;
//   - refresh не удался или пользователь не советник — на federated logout;
//   - иначе Proceed.
func (g *Guard) RequireSession(ctx context.Context, req *http.Request) Outcome {
	res := g.resolver.Resolve(ctx, req)

	outcome := decide(res)
	guardOutcomesTotal.WithLabelValues(outcome).Inc()

	switch outcome {
	case outcomeNoSession:
		return Outcome{redirect: LoginRedirect(req), Resolution: res}
	case outcomeProceed:
		return Outcome{session: res.Session, Resolution: res}
	default:
		return Outcome{redirect: &Redirect{Path: FederatedLogoutPath}, Resolution: res}
	}
}

// decide классифицирует результат резолвера.
func decide(res Resolution) string {
	s := res.Session
	switch {
	case s == nil:
		return outcomeNoSession
	case !s.Usable():
		return outcomeRefreshFailed
	case !s.User.EstConseiller:
		return outcomeNotConseiller
	default:
		return outcomeProceed
	}
}

// LoginRedirect строит redirect на страницу входа.
// redirectUrl опускается для корневого пути.
func LoginRedirect(req *http.Request) *Redirect {
	q := url.Values{}
	if req.URL.Path != "" && req.URL.Path != DefaultLandingPath {
		q.Set(QueryRedirectURL, req.URL.RequestURI())
	}
	return &Redirect{Path: LoginPath, Query: q}
}

// LoginParams — параметры страницы входа.
type LoginParams struct {
	// RedirectURL — куда вернуть пользователя после входа.
	RedirectURL string
	// Source — источник перехода (например, notif-mail).
	Source string
}

// LoginParamsFromQuery извлекает параметры входа из query.
func LoginParamsFromQuery(q url.Values) LoginParams {
	return LoginParams{
		RedirectURL: q.Get(QueryRedirectURL),
		Source:      q.Get(QuerySource),
	}
}

// Destination возвращает redirect после входа.
// Небезопасный или пустой redirectUrl заменяется на корень. Кодирование
// пути, порядок query и фрагмент redirectUrl сохраняются; source
// заменяет одноимённый параметр и добавляется в конец query.
func (p LoginParams) Destination() *Redirect {
	dest := &Redirect{Path: DefaultLandingPath}

	if IsSafeRedirect(p.RedirectURL) {
		if u, err := url.Parse(p.RedirectURL); err == nil && isLocalURL(u) {
			dest.Path, dest.RawPath = u.Path, u.RawPath
			dest.RawQuery = u.RawQuery
			dest.Fragment, dest.RawFragment = u.Fragment, u.RawFragment
		}
	}
	if p.Source != "" {
		dest.RawQuery = dropQueryParam(dest.RawQuery, QuerySource)
		dest.Query = url.Values{QuerySource: {p.Source}}
	}
	return dest
}

// dropQueryParam убирает из raw query все параметры key, не трогая остальные.
func dropQueryParam(rawQuery, key string) string {
	if rawQuery == "" {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(name); err == nil && unescaped == key {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

// RedirectIfAlreadyConnected для страницы входа: если сессия уже пригодна,
// возвращает redirect на назначение; иначе nil (показать форму входа).
// Resolution возвращается всегда — обновлённую сессию нужно сохранить.
func (g *Guard) RedirectIfAlreadyConnected(ctx context.Context, req *http.Request, params LoginParams) (*Redirect, Resolution) {
	res := g.resolver.Resolve(ctx, req)
	if decide(res) != outcomeProceed {
		return nil, res
	}
	guardOutcomesTotal.WithLabelValues(outcomeAlreadySignedIn).Inc()
	return params.Destination(), res
}

// IsSafeRedirect проверяет, что адрес относительный и остаётся на этом сайте.
func IsSafeRedirect(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	return !strings.ContainsAny(target, "\r\n")
}

// isLocalURL — после разбора не осталось схемы, хоста и двойного слеша.
func isLocalURL(u *url.URL) bool {
	return u.Scheme == "" && u.Host == "" &&
		strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//")
}
