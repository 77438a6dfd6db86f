package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/storage"
)

// SendRequest is the JSON body of POST /api/v1/mail/send.
type SendRequest struct {
	Provider    string              `json:"provider,omitempty"`
	From        string              `json:"from"`
	ReplyTo     string              `json:"reply_to,omitempty"`
	To          []string            `json:"to"`
	Cc          []string            `json:"cc,omitempty"`
	Bcc         []string            `json:"bcc,omitempty"`
	Subject     string              `json:"subject"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Body        *BodyRequest        `json:"body,omitempty"`
	Markdown    string              `json:"markdown,omitempty"`
	Attachments []AttachmentRequest `json:"attachments,omitempty"`
	TrackOpens  bool                `json:"track_opens,omitempty"`
	TrackLinks  string              `json:"track_links,omitempty"`
}

// BodyRequest is an explicitly typed body.
type BodyRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AttachmentRequest carries either inline base64 content or the key of an
// object in attachment storage.
type AttachmentRequest struct {
	Filename    string  `json:"filename,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Content     *string `json:"content,omitempty"`
	ContentID   string  `json:"content_id,omitempty"`
	S3Key       string  `json:"s3_key,omitempty"`
}

// BatchRequest is the JSON body of POST /api/v1/mail/send/batch. The
// batch-level provider applies to every message.
type BatchRequest struct {
	Provider string        `json:"provider,omitempty"`
	Messages []SendRequest `json:"messages"`
}

// AttachmentSource resolves attachments stored outside the request.
// *storage.Store satisfies it.
type AttachmentSource interface {
	Fetch(ctx context.Context, obj storage.Object) (email.Attachment, error)
}

// errBadRequest marks request shapes the email model cannot express.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// toEmail maps a request onto a validated Email.
func toEmail(ctx context.Context, req *SendRequest, src AttachmentSource) (*email.Email, error) {
	b := email.NewBuilder().
		From(req.From).
		To(req.To...).
		Cc(req.Cc...).
		Bcc(req.Bcc...).
		Subject(req.Subject).
		TrackOpens(req.TrackOpens)

	if req.ReplyTo != "" {
		b.ReplyTo(req.ReplyTo)
	}
	if req.Text != "" {
		b.Text(req.Text)
	}
	if req.HTML != "" {
		b.HTML(req.HTML)
	}

	if req.Body != nil && req.Markdown != "" {
		return nil, badRequest("body and markdown are mutually exclusive")
	}
	if req.Body != nil {
		bt, err := email.ParseBodyType(req.Body.Type)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		b.Body(email.Body{Type: bt, Content: req.Body.Content})
	}
	if req.Markdown != "" {
		body, err := email.MarkdownBody(req.Markdown)
		if err != nil {
			return nil, badRequest("render markdown: %v", err)
		}
		b.Body(body)
	}

	if req.TrackLinks != "" {
		tl, err := email.ParseTrackLinks(req.TrackLinks)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		b.TrackLinks(tl)
	}

	for i := range req.Attachments {
		att, err := toAttachment(ctx, &req.Attachments[i], src)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: %w", i, err)
		}
		b.Attach(att)
	}

	return b.Build()
}

func toAttachment(ctx context.Context, a *AttachmentRequest, src AttachmentSource) (email.Attachment, error) {
	switch {
	case a.S3Key != "" && a.Content != nil:
		return email.Attachment{}, badRequest("content and s3_key are mutually exclusive")
	case a.S3Key != "":
		if src == nil {
			return email.Attachment{}, badRequest("attachment storage is not configured")
		}
		return src.Fetch(ctx, storage.Object{
			Key:         a.S3Key,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			ContentID:   a.ContentID,
		})
	}

	var content []byte
	if a.Content != nil {
		decoded, err := base64.StdEncoding.DecodeString(*a.Content)
		if err != nil {
			return email.Attachment{}, badRequest("invalid base64 content for %q", a.Filename)
		}
		content = decoded
	}
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b := email.NewAttachmentBuilder().
		Filename(a.Filename).
		ContentType(contentType).
		Content(content)
	if a.ContentID != "" {
		b.ID(a.ContentID)
	}
	return b.Build()
}
