// Package provider defines the contract email delivery backends implement,
// a name-keyed registry of backends and the dispatcher that applies the
// capability policy before handing a message to a backend.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shineum/maildispatch/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// Each provider maps the canonical Email onto its own transport (stdout,
// SMTP, SES, Graph, SendGrid, and so on).
type Provider interface {
	// Name returns the stable identifier used for registration.
	Name() string

	// SupportsTrackingLinks reports whether the backend honours link and
	// open tracking preferences.
	SupportsTrackingLinks() bool

	// SupportsAttachments reports whether the backend can deliver
	// attachments.
	SupportsAttachments() bool

	// Send delivers e. A nil error means the provider accepted the
	// message; any failure is returned, never swallowed.
	Send(ctx context.Context, e *email.Email) (*Response, error)
}

// Response is the provider metadata for an accepted message.
type Response struct {
	Provider   string
	MessageID  string
	StatusCode int
	Header     http.Header
}

var (
	ErrProviderNotFound       = errors.New("provider not found")
	ErrAttachmentsUnsupported = errors.New("provider does not support attachments")
	ErrTrackingUnsupported    = errors.New("provider does not support tracking")
	ErrNilEmail               = errors.New("nil email")
)

// SendError is a transport or provider-side rejection.
type SendError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *SendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s: send failed (status %d, %s): %s", e.Provider, e.StatusCode, e.Code, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: send failed (status %d): %s", e.Provider, e.StatusCode, msg)
	case e.Code != "":
		return fmt.Sprintf("%s: send failed (%s): %s", e.Provider, e.Code, msg)
	default:
		return fmt.Sprintf("%s: send failed: %s", e.Provider, msg)
	}
}

func (e *SendError) Unwrap() error { return e.Err }
