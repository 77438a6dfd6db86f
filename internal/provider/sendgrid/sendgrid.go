// Package sendgrid implements a Provider backed by the SendGrid v3 mail
// send API.
package sendgrid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/samber/lo"
	sg "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the SendGrid provider.
const Name = "sendgrid"

// Config holds SendGrid credentials.
type Config struct {
	APIKey string
}

// MailSender is the subset of the SendGrid client used here.
type MailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Provider sends mail through SendGrid.
type Provider struct {
	client MailSender
}

// New creates a Provider using the official client.
func New(cfg Config) *Provider {
	return NewWithClient(sg.NewSendClient(cfg.APIKey))
}

// NewWithClient creates a Provider with a custom client, used for testing.
func NewWithClient(client MailSender) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsTrackingLinks() bool { return false }
func (p *Provider) SupportsAttachments() bool   { return true }

// Send maps msg onto a v3 mail request and posts it.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	resp, err := p.client.SendWithContext(ctx, buildMail(msg))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.SendError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	header := http.Header(resp.Headers).Clone()
	return &provider.Response{
		Provider:   Name,
		MessageID:  header.Get("X-Message-Id"),
		StatusCode: resp.StatusCode,
		Header:     header,
	}, nil
}

// buildMail produces one personalization holding every recipient and a
// single content block. The text and html shortcut fields take precedence
// over body.
func buildMail(msg *email.Email) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(toEmail(msg.From()))
	m.Subject = msg.Subject()
	if reply, ok := msg.ReplyTo(); ok {
		m.SetReplyTo(toEmail(reply))
	}

	personalization := mail.NewPersonalization()
	personalization.Subject = msg.Subject()
	personalization.AddTos(toEmails(msg.To())...)
	personalization.AddCCs(toEmails(msg.Cc())...)
	personalization.AddBCCs(toEmails(msg.Bcc())...)
	m.AddPersonalizations(personalization)

	if content, ok := msg.ShortcutContent(); ok {
		m.AddContent(mail.NewContent(content.Type.MediaType(), content.Content))
	}

	for _, att := range msg.Attachments() {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content()))
		a.SetType(att.ContentType())
		a.SetFilename(att.Filename())
		if id, ok := att.ID(); ok {
			a.SetContentID(id)
			a.SetDisposition("inline")
		} else {
			a.SetDisposition("attachment")
		}
		m.AddAttachment(a)
	}

	return m
}

func toEmail(c email.Contact) *mail.Email {
	return mail.NewEmail(c.Name, c.Address)
}

func toEmails(cs []email.Contact) []*mail.Email {
	return lo.Map(cs, func(c email.Contact, _ int) *mail.Email { return toEmail(c) })
}

type apiError struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}

func errorMessage(resp *rest.Response) string {
	var er errorResponse
	if err := json.Unmarshal([]byte(resp.Body), &er); err == nil && len(er.Errors) > 0 {
		return strings.Join(lo.Map(er.Errors, func(e apiError, _ int) string { return e.Message }), "; ")
	}
	if resp.Body != "" {
		return resp.Body
	}
	return http.StatusText(resp.StatusCode)
}
