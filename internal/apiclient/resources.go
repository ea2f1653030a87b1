package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Conseiller — профиль советника (GET /conseillers/{id}).
type Conseiller struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email,omitempty"`
	Structure string  `json:"structure"`
	Agence    *Agence `json:"agence,omitempty"`
	// NotificationsSonores — предпочтение звука уведомлений чата.
	NotificationsSonores bool `json:"notificationsSonores"`
}

// Agence — агентство или Mission Locale советника.
type Agence struct {
	ID  string `json:"id"`
	Nom string `json:"nom"`
}

// Jeune — бенефициар в портфеле советника.
type Jeune struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	// IsActivated — бенефициар активировал мобильное приложение.
	IsActivated bool `json:"isActivated"`
	// LastActivity — последняя активность (RFC 3339), может отсутствовать.
	LastActivity string `json:"lastActivity,omitempty"`
	// Dispositif — CEJ, PACEA и т.д.
	Dispositif string `json:"dispositif,omitempty"`
	// SituationCourante — текущая ситуация (Mission Locale).
	SituationCourante string `json:"situationCourante,omitempty"`
	// IDPartenaire — идентификатор в системе партнёра (dossier i-milo, FT).
	IDPartenaire string `json:"idPartenaire,omitempty"`
	// MessagesNonLus — непрочитанные сообщения чата.
	MessagesNonLus int `json:"messagesNonLus"`
}

// FullName — "Nom Prénom", как в списках портфеля.
func (j Jeune) FullName() string {
	return j.LastName + " " + j.FirstName
}

// JeuneDetail — карточка бенефициара (GET /jeunes/{id}).
type JeuneDetail struct {
	Jeune
	Email        string      `json:"email,omitempty"`
	CreationDate string      `json:"creationDate,omitempty"`
	Conseiller   *Conseiller `json:"conseiller,omitempty"`
}

// RendezVous — событие agenda советника.
type RendezVous struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Date     time.Time      `json:"date"`
	Duration int            `json:"duration"`
	Type     TypeRendezVous `json:"type"`
	Modality string         `json:"modality,omitempty"`
	Jeunes   []Jeune        `json:"jeunes,omitempty"`
}

// TypeRendezVous — код и подпись типа события.
type TypeRendezVous struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// ChatToken — учётные данные чата, выпускаемые API.
type ChatToken struct {
	Token string `json:"token"` //nolint:gosec // G117: токен чата
	Key   string `json:"cle"`
}

// GetConseiller возвращает профиль советника.
func (c *Client) GetConseiller(ctx context.Context, accessToken, conseillerID string) (*Conseiller, error) {
	var conseiller Conseiller
	path := "/conseillers/" + url.PathEscape(conseillerID)
	if err := c.Get(ctx, accessToken, path, &conseiller); err != nil {
		return nil, err
	}
	return &conseiller, nil
}

// ListJeunes возвращает портфель советника.
func (c *Client) ListJeunes(ctx context.Context, accessToken, conseillerID string) ([]Jeune, error) {
	var jeunes []Jeune
	path := "/conseillers/" + url.PathEscape(conseillerID) + "/jeunes"
	if err := c.Get(ctx, accessToken, path, &jeunes); err != nil {
		return nil, err
	}
	return jeunes, nil
}

// GetJeune возвращает карточку бенефициара.
func (c *Client) GetJeune(ctx context.Context, accessToken, jeuneID string) (*JeuneDetail, error) {
	var jeune JeuneDetail
	path := "/jeunes/" + url.PathEscape(jeuneID)
	if err := c.Get(ctx, accessToken, path, &jeune); err != nil {
		return nil, err
	}
	return &jeune, nil
}

// ListRendezVous возвращает события советника в интервале [from, to).
func (c *Client) ListRendezVous(ctx context.Context, accessToken, conseillerID string, from, to time.Time) ([]RendezVous, error) {
	q := url.Values{
		"dateDebut": {from.Format(time.RFC3339)},
		"dateFin":   {to.Format(time.RFC3339)},
	}
	path := fmt.Sprintf("/v2/conseillers/%s/rendezvous?%s", url.PathEscape(conseillerID), q.Encode())

	var rdvs []RendezVous
	if err := c.Get(ctx, accessToken, path, &rdvs); err != nil {
		return nil, err
	}
	return rdvs, nil
}

// CreateChatToken выпускает учётные данные чата для советника.
func (c *Client) CreateChatToken(ctx context.Context, accessToken string) (*ChatToken, error) {
	var token ChatToken
	if err := c.Post(ctx, accessToken, "/auth/firebase/token", nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
