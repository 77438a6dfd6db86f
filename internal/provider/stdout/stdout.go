// Package stdout implements a Provider that prints emails to standard output.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the stdout provider.
const Name = "stdout"

// Provider prints email messages to stdout in a human-readable format.
type Provider struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsTrackingLinks() bool { return false }
func (p *Provider) SupportsAttachments() bool   { return true }

// Send prints the email message in a readable format.
func (p *Provider) Send(_ context.Context, msg *email.Email) (*provider.Response, error) {
	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From())
	if reply, ok := msg.ReplyTo(); ok {
		fmt.Fprintf(&b, "Reply-To: %s\n", reply)
	}
	if to := msg.To(); len(to) > 0 {
		fmt.Fprintf(&b, "To: %s\n", joinContacts(to))
	}
	if cc := msg.Cc(); len(cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", joinContacts(cc))
	}
	if bcc := msg.Bcc(); len(bcc) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", joinContacts(bcc))
	}

	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject())
	b.WriteString("Body:\n")

	if body, ok := msg.Content(); ok {
		b.WriteString(body.Content + "\n")
	}

	if msg.HasAttachments() {
		attachments := lo.Map(msg.Attachments(), func(att email.Attachment, _ int) string {
			return fmt.Sprintf("%s (%s)", att.Filename(), formatSize(att.Size()))
		})
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString("========================================\n")

	p.mu.Lock()
	_, err := io.WriteString(p.writer, b.String())
	p.mu.Unlock()
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}

	return &provider.Response{Provider: Name, MessageID: uuid.NewString()}, nil
}

func joinContacts(cs []email.Contact) string {
	return strings.Join(lo.Map(cs, func(c email.Contact, _ int) string { return c.String() }), ", ")
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
