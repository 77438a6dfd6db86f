// Package graph implements a Provider that sends emails via the Microsoft Graph API.
package graph

import (
	"encoding/base64"

	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/email"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject       string            `json:"subject"`
	Body          messageBody       `json:"body"`
	ToRecipients  []recipient       `json:"toRecipients"`
	CcRecipients  []recipient       `json:"ccRecipients,omitempty"`
	BccRecipients []recipient       `json:"bccRecipients,omitempty"`
	ReplyTo       []recipient       `json:"replyTo,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
	ContentID    string `json:"contentId,omitempty"`
	IsInline     bool   `json:"isInline,omitempty"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// buildSendMailRequest converts an email.Email into a Graph API sendMail request body.
// Graph carries a single body, chosen with the text/html shortcut fields
// ahead of body.
func buildSendMailRequest(msg *email.Email, saveToSentItems bool) *sendMailRequest {
	body := messageBody{ContentType: "text"}
	if content, ok := msg.ShortcutContent(); ok {
		body.Content = content.Content
		if content.Type == email.BodyTypeHTML {
			body.ContentType = "html"
		}
	}

	m := sendMailMessage{
		Subject:       msg.Subject(),
		Body:          body,
		ToRecipients:  toRecipients(msg.To()),
		CcRecipients:  toRecipients(msg.Cc()),
		BccRecipients: toRecipients(msg.Bcc()),
	}
	if reply, ok := msg.ReplyTo(); ok {
		m.ReplyTo = toRecipients([]email.Contact{reply})
	}

	if msg.HasAttachments() {
		m.Attachments = lo.Map(msg.Attachments(), func(att email.Attachment, _ int) graphAttachment {
			id, inline := att.ID()
			return graphAttachment{
				ODataType:    "#microsoft.graph.fileAttachment",
				Name:         att.Filename(),
				ContentType:  att.ContentType(),
				ContentBytes: base64.StdEncoding.EncodeToString(att.Content()),
				ContentID:    id,
				IsInline:     inline,
			}
		})
	}

	return &sendMailRequest{Message: m, SaveToSentItems: saveToSentItems}
}

func toRecipients(cs []email.Contact) []recipient {
	out := make([]recipient, 0, len(cs))
	for _, c := range cs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: c.Address, Name: c.Name}})
	}
	return out
}
