// Package parser turns raw RFC 5322 messages received by the relay into
// canonical emails.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/maildispatch/internal/email"
)

// ErrMalformed is returned when the message cannot be read as MIME.
var ErrMalformed = errors.New("malformed message")

// Envelope is the SMTP transaction data that accompanies a message.
type Envelope struct {
	From       string
	Recipients []string
}

// Parse reads a message and builds a validated Email from it.
//
// The header From wins over the envelope sender. Envelope recipients that
// do not appear in To, Cc or Bcc are delivered as Bcc, which is how blind
// copies arrive over SMTP.
func Parse(r io.Reader, env Envelope) (*email.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer mr.Close()

	if mt, params, err := mr.Header.ContentType(); err == nil &&
		strings.HasPrefix(mt, "multipart/") && params["boundary"] == "" {
		return nil, fmt.Errorf("%w: multipart message missing boundary", ErrMalformed)
	}

	b := email.NewBuilder()
	if err := readHeader(b, mr.Header, env); err != nil {
		return nil, err
	}
	if err := readParts(b, mr); err != nil {
		return nil, err
	}
	return b.Build()
}

func readHeader(b *email.Builder, h mail.Header, env Envelope) error {
	from := addressList(h, "From")
	switch {
	case len(from) > 0:
		b.FromContact(from[0])
	case env.From != "":
		b.From(env.From)
	}

	if reply := addressList(h, "Reply-To"); len(reply) > 0 {
		b.ReplyToContact(reply[0])
	}

	subject, err := h.Subject()
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("%w: subject: %v", ErrMalformed, err)
	}
	b.Subject(subject)

	to := addressList(h, "To")
	cc := addressList(h, "Cc")
	bcc := addressList(h, "Bcc")
	b.ToContacts(to...).CcContacts(cc...).BccContacts(bcc...)

	seen := make(map[string]struct{}, len(to)+len(cc)+len(bcc))
	for _, list := range [][]email.Contact{to, cc, bcc} {
		for _, c := range list {
			seen[strings.ToLower(c.Address)] = struct{}{}
		}
	}
	for _, rcpt := range env.Recipients {
		if _, ok := seen[strings.ToLower(rcpt)]; ok {
			continue
		}
		seen[strings.ToLower(rcpt)] = struct{}{}
		b.Bcc(rcpt)
	}
	return nil
}

// addressList returns the parsed addresses of a header field. An
// unparseable field falls back to a comma split.
func addressList(h mail.Header, key string) []email.Contact {
	addrs, err := h.AddressList(key)
	if err == nil {
		out := make([]email.Contact, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, email.NewContact(a.Address, a.Name))
		}
		return out
	}

	raw := h.Get(key)
	slog.Warn("failed to parse address list, splitting on commas", "header", key, "error", err)
	var out []email.Contact
	for _, p := range strings.Split(raw, ",") {
		if c := email.ParseContact(p); !c.IsZero() {
			out = append(out, c)
		}
	}
	return out
}

func readParts(b *email.Builder, mr *mail.Reader) error {
	var haveText, haveHTML bool

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				slog.Warn("skipping undecodable MIME part", "error", err)
				continue
			}
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			mediaType, params, _ := h.ContentType()
			if mediaType == "" {
				mediaType = "text/plain"
			}
			_, hasName := params["name"]
			cid := h.Get("Content-Id")

			switch {
			case mediaType == "text/plain" && !haveText && !hasName && cid == "":
				content, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("%w: text part: %v", ErrMalformed, err)
				}
				b.Text(string(content))
				haveText = true
			case mediaType == "text/html" && !haveHTML && !hasName && cid == "":
				content, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("%w: html part: %v", ErrMalformed, err)
				}
				b.HTML(string(content))
				haveHTML = true
			case hasName || cid != "":
				att, err := attachment(p.Body, params["name"], mediaType, cid)
				if err != nil {
					return err
				}
				b.Attach(att)
			default:
				slog.Warn("unrecognized MIME part, skipping", "content_type", mediaType)
			}

		case *mail.AttachmentHeader:
			mediaType, _, _ := h.ContentType()
			if mediaType == "" {
				mediaType = "application/octet-stream"
			}
			filename, _ := h.Filename()
			att, err := attachment(p.Body, filename, mediaType, h.Get("Content-Id"))
			if err != nil {
				return err
			}
			b.Attach(att)
		}
	}
}

func attachment(body io.Reader, filename, mediaType, cid string) (email.Attachment, error) {
	if filename == "" {
		filename = fallbackFilename(mediaType)
	}
	ab := email.NewAttachmentBuilder().
		Filename(filename).
		ContentType(mediaType).
		ContentFromReader(body)
	if cid != "" {
		ab.ID(cid)
	}
	return ab.Build()
}

// fallbackFilename derives a name from the media type, since several
// backends reject unnamed attachments.
func fallbackFilename(mediaType string) string {
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return "attachment." + sub
	}
	return "attachment"
}
