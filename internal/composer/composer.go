// Package composer turns a validated email.Email into a MIME multipart
// message for SMTP-style transports.
package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/email"
)

const (
	// ContentTypeTextUTF8 is the media type of a plain-text body part.
	ContentTypeTextUTF8 = "text/plain; charset=UTF-8"
	// ContentTypeHTMLUTF8 is the media type of an HTML body part.
	ContentTypeHTMLUTF8 = "text/html; charset=UTF-8"

	defaultMessageIDDomain = "localhost"
)

// Config holds composition settings shared by every message.
type Config struct {
	// MessageIDDomain is the right-hand side of generated Message-IDs.
	MessageIDDomain string
	// Now returns the Date header value; defaults to time.Now.
	Now func() time.Time
}

// Composer builds MIME messages. It holds no per-message state and is
// safe for concurrent use.
type Composer struct {
	domain string
	now    func() time.Time
}

// New creates a Composer.
func New(cfg Config) *Composer {
	c := &Composer{domain: cfg.MessageIDDomain, now: cfg.Now}
	if c.domain == "" {
		c.domain = defaultMessageIDDomain
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ComposeError reports a message that could not be assembled.
type ComposeError struct {
	Op  string
	Err error
}

func (e *ComposeError) Error() string {
	return fmt.Sprintf("compose %s: %v", e.Op, e.Err)
}

func (e *ComposeError) Unwrap() error { return e.Err }

// Compose builds a new Message from e. The input is not modified.
func (c *Composer) Compose(e *email.Email) (*Message, error) {
	if e == nil {
		return nil, &ComposeError{Op: "email", Err: fmt.Errorf("nil email")}
	}

	from, err := mail.ParseAddress(e.From().Address)
	if err != nil {
		return nil, &ComposeError{Op: "from", Err: err}
	}
	from.Name = e.From().Name

	m := &Message{
		subject:   e.Subject(),
		from:      from,
		date:      c.now(),
		messageID: fmt.Sprintf("%s@%s", uuid.NewString(), c.domain),
	}

	if reply, ok := e.ReplyTo(); ok {
		addr, err := toAddress(reply)
		if err != nil {
			return nil, &ComposeError{Op: "reply-to", Err: err}
		}
		m.replyTo = addr
	}

	if m.to, err = toAddresses(e.To()); err != nil {
		return nil, &ComposeError{Op: "to", Err: err}
	}
	if m.cc, err = toAddresses(e.Cc()); err != nil {
		return nil, &ComposeError{Op: "cc", Err: err}
	}
	if m.bcc, err = toAddresses(e.Bcc()); err != nil {
		return nil, &ComposeError{Op: "bcc", Err: err}
	}

	if body, ok := e.Content(); ok {
		m.parts = append(m.parts, bodyPart(body))
	}
	for _, att := range e.Attachments() {
		m.parts = append(m.parts, attachmentPart(att))
	}

	return m, nil
}

func bodyPart(b email.Body) Part {
	ct := ContentTypeTextUTF8
	if b.Type == email.BodyTypeHTML {
		ct = ContentTypeHTMLUTF8
	}
	return Part{Kind: PartBody, ContentType: ct, Content: []byte(b.Content)}
}

func attachmentPart(a email.Attachment) Part {
	id, _ := a.ID()
	return Part{
		Kind:        PartAttachment,
		ContentType: a.ContentType(),
		Filename:    a.Filename(),
		ContentID:   id,
		Content:     a.Content(),
	}
}

func toAddress(c email.Contact) (*mail.Address, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Address))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", c.Address, err)
	}
	if c.Name != "" {
		addr.Name = c.Name
	}
	return addr, nil
}

func toAddresses(cs []email.Contact) ([]*mail.Address, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	out := make([]*mail.Address, 0, len(cs))
	for _, c := range cs {
		addr, err := toAddress(c)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func addressStrings(addrs []*mail.Address) []string {
	return lo.Map(addrs, func(a *mail.Address, _ int) string { return a.Address })
}
