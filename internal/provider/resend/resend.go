// Package resend implements a Provider backed by the Resend API.
package resend

import (
	"context"

	"github.com/resend/resend-go/v3"
	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the Resend provider.
const Name = "resend"

// Config holds Resend credentials.
type Config struct {
	APIKey string
	// Sender overrides the From address when set.
	Sender string
}

// EmailsAPI is the subset of the Resend client used here.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Provider sends mail through Resend.
type Provider struct {
	emails EmailsAPI
	sender string
}

func New(cfg Config) *Provider {
	return NewWithClient(resend.NewClient(cfg.APIKey).Emails, cfg.Sender)
}

// NewWithClient creates a Provider with a custom emails client, used for testing.
func NewWithClient(emails EmailsAPI, sender string) *Provider {
	return &Provider{emails: emails, sender: sender}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsTrackingLinks() bool { return false }
func (p *Provider) SupportsAttachments() bool   { return true }

func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	resp, err := p.emails.SendWithContext(ctx, p.buildRequest(msg))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}
	return &provider.Response{Provider: Name, MessageID: resp.Id, StatusCode: 200}, nil
}

// buildRequest fills Text and Html from the shortcut fields first; body
// only fills the slot matching its type when that slot is still empty.
func (p *Provider) buildRequest(msg *email.Email) *resend.SendEmailRequest {
	from := msg.From().String()
	if p.sender != "" {
		from = p.sender
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      contactStrings(msg.To()),
		Cc:      contactStrings(msg.Cc()),
		Bcc:     contactStrings(msg.Bcc()),
		Subject: msg.Subject(),
	}
	if reply, ok := msg.ReplyTo(); ok {
		req.ReplyTo = reply.String()
	}

	if text, ok := msg.Text(); ok {
		req.Text = text
	}
	if html, ok := msg.HTML(); ok {
		req.Html = html
	}
	if body, ok := msg.Body(); ok {
		switch {
		case body.Type == email.BodyTypeHTML && req.Html == "":
			req.Html = body.Content
		case body.Type == email.BodyTypeText && req.Text == "":
			req.Text = body.Content
		}
	}

	if msg.HasAttachments() {
		req.Attachments = lo.Map(msg.Attachments(), func(a email.Attachment, _ int) *resend.Attachment {
			id, _ := a.ID()
			return &resend.Attachment{
				Filename:    a.Filename(),
				Content:     a.Content(),
				ContentType: a.ContentType(),
				ContentId:   id,
			}
		})
	}
	return req
}

func contactStrings(cs []email.Contact) []string {
	return lo.Map(cs, func(c email.Contact, _ int) string { return c.String() })
}
