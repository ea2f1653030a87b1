// claims.go — проверка access token Keycloak через JWKS и извлечение
// идентичности советника (userId, userType, userStructure, userRoles).
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/conseiller-web/internal/domain/roles"
)

// accessTokenClaims — raw claims access token Keycloak realm pass-emploi.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	// UserID — идентификатор пользователя в backend API.
	UserID string `json:"userId"`
	// UserType — CONSEILLER, JEUNE и т.д.
	UserType string `json:"userType"`
	// UserStructure — организационная структура.
	UserStructure string `json:"userStructure"`
	// UserRoles — SUPERVISEUR, SUPERVISEUR_RESPONSABLE.
	UserRoles []string `json:"userRoles,omitempty"`

	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	PreferredUsername string `json:"preferred_username"`
}

// ClaimsVerifier проверяет подпись (RS256), issuer и срок действия access token.
type ClaimsVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
}

// NewClaimsVerifier создаёт verifier с JWKS из Keycloak и фоновым обновлением ключей.
// Стартует даже если Keycloak ещё недоступен.
func NewClaimsVerifier(
	jwksURL string,
	httpClient *http.Client,
	issuer string,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*ClaimsVerifier, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewClaimsVerifierWithKeyfunc(k, issuer, leeway), nil
}

// NewClaimsVerifierWithKeyfunc создаёт verifier с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewClaimsVerifierWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration) *ClaimsVerifier {
	return &ClaimsVerifier{
		jwks:   kf,
		issuer: issuer,
		leeway: leeway,
	}
}

// Verify проверяет access token и возвращает идентичность советника.
func (v *ClaimsVerifier) Verify(ctx context.Context, accessToken string) (*User, error) {
	raw := &accessTokenClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(accessToken, raw, v.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("проверка access token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("невалидный access token")
	}

	userID := raw.UserID
	if userID == "" {
		userID = raw.Subject
	}
	if userID == "" {
		return nil, errors.New("в access token нет userId и sub")
	}

	superviseur, responsable := roles.FlagsFromRoles(raw.UserRoles)

	return &User{
		ID:                        userID,
		Name:                      displayName(raw.GivenName, raw.FamilyName, raw.PreferredUsername),
		Structure:                 raw.UserStructure,
		EstConseiller:             raw.UserType == roles.UserTypeConseiller,
		EstSuperviseur:            superviseur,
		EstSuperviseurResponsable: responsable,
	}, nil
}

// displayName — "Prénom Nom", при отсутствии — preferred_username.
func displayName(given, family, username string) string {
	name := strings.TrimSpace(given + " " + family)
	if name == "" {
		return username
	}
	return name
}
