// Package postmark implements a Provider backed by the Postmark email API.
// It is the one HTTP backend that honours link and open tracking.
package postmark

import (
	"encoding/base64"
	"strings"

	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/email"
)

// sendRequest is the body of POST /email.
type sendRequest struct {
	From          string       `json:"From"`
	To            string       `json:"To,omitempty"`
	Cc            string       `json:"Cc,omitempty"`
	Bcc           string       `json:"Bcc,omitempty"`
	Subject       string       `json:"Subject"`
	ReplyTo       string       `json:"ReplyTo,omitempty"`
	HTMLBody      string       `json:"HtmlBody,omitempty"`
	TextBody      string       `json:"TextBody,omitempty"`
	TrackOpens    bool         `json:"TrackOpens"`
	TrackLinks    string       `json:"TrackLinks"`
	MessageStream string       `json:"MessageStream,omitempty"`
	Attachments   []attachment `json:"Attachments,omitempty"`
}

type attachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
	ContentID   string `json:"ContentID,omitempty"`
}

// sendResponse is returned for both accepted and rejected messages.
type sendResponse struct {
	To          string `json:"To"`
	SubmittedAt string `json:"SubmittedAt"`
	MessageID   string `json:"MessageID"`
	ErrorCode   int    `json:"ErrorCode"`
	Message     string `json:"Message"`
}

// trackLinksValue maps the canonical preference onto Postmark's enum.
func trackLinksValue(t email.TrackLinks) string {
	switch t {
	case email.TrackLinksHTML:
		return "HtmlOnly"
	case email.TrackLinksText:
		return "TextOnly"
	case email.TrackLinksAll:
		return "HtmlAndText"
	default:
		return "None"
	}
}

func buildRequest(msg *email.Email, sender, stream string) *sendRequest {
	from := msg.From().String()
	if sender != "" {
		from = sender
	}

	req := &sendRequest{
		From:          from,
		To:            joinContacts(msg.To()),
		Cc:            joinContacts(msg.Cc()),
		Bcc:           joinContacts(msg.Bcc()),
		Subject:       msg.Subject(),
		TrackOpens:    msg.TrackOpens(),
		TrackLinks:    trackLinksValue(msg.TrackLinks()),
		MessageStream: stream,
	}
	if reply, ok := msg.ReplyTo(); ok {
		req.ReplyTo = reply.String()
	}

	if text, ok := msg.Text(); ok {
		req.TextBody = text
	}
	if html, ok := msg.HTML(); ok {
		req.HTMLBody = html
	}
	if body, ok := msg.Body(); ok {
		switch {
		case body.Type == email.BodyTypeHTML && req.HTMLBody == "":
			req.HTMLBody = body.Content
		case body.Type == email.BodyTypeText && req.TextBody == "":
			req.TextBody = body.Content
		}
	}

	for _, a := range msg.Attachments() {
		att := attachment{
			Name:        a.Filename(),
			Content:     base64.StdEncoding.EncodeToString(a.Content()),
			ContentType: a.ContentType(),
		}
		if id, ok := a.ID(); ok {
			att.ContentID = "cid:" + id
		}
		req.Attachments = append(req.Attachments, att)
	}
	return req
}

func joinContacts(cs []email.Contact) string {
	return strings.Join(lo.Map(cs, func(c email.Contact, _ int) string { return c.String() }), ",")
}
