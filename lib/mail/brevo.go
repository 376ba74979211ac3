package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tarancss/luxhedge/lib/rest"
)

// Brevo delivers messages through the Brevo transactional email API.
type Brevo struct {
	c    *rest.Client
	from contact
}

type contact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      contact   `json:"sender"`
	To          []contact `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

// NewBrevo returns a Brevo transport for the API at base (ie. https://api.brevo.com/v3).
func NewBrevo(base, key, from, name string) *Brevo {
	return &Brevo{c: rest.New(base, http.Header{"Api-Key": {key}}), from: contact{Email: from, Name: name}}
}

// Deliver sends m.
func (b *Brevo) Deliver(ctx context.Context, m Message) error {
	req := brevoEmail{
		Sender:      b.from,
		To:          []contact{{Email: m.To, Name: m.Name}},
		Subject:     m.Subject,
		HTMLContent: m.HTML,
	}

	var resp struct {
		MessageID string `json:"messageId"`
	}

	if err := b.c.Post(ctx, "/smtp/email", req, &resp); err != nil {
		return fmt.Errorf("brevo: %w", err)
	}

	return nil
}
