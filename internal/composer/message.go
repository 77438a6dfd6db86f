package composer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/samber/lo"
)

// RecipientType selects one recipient category of a Message.
type RecipientType int

const (
	To RecipientType = iota
	Cc
	Bcc
)

func (t RecipientType) String() string {
	switch t {
	case Cc:
		return "Cc"
	case Bcc:
		return "Bcc"
	default:
		return "To"
	}
}

// PartKind distinguishes the body part from attachment parts.
type PartKind int

const (
	PartBody PartKind = iota
	PartAttachment
)

// Part is one entry of the multipart container.
type Part struct {
	Kind        PartKind
	ContentType string
	Filename    string
	ContentID   string
	Content     []byte
}

// Message is a composed MIME message. The body part, when present, comes
// first and attachments follow in their original order. Bcc recipients are
// part of the envelope but are never written to the header.
type Message struct {
	subject   string
	from      *mail.Address
	replyTo   *mail.Address
	to        []*mail.Address
	cc        []*mail.Address
	bcc       []*mail.Address
	date      time.Time
	messageID string
	parts     []Part
}

func (m *Message) Subject() string { return m.subject }

// From returns the sender mailbox address.
func (m *Message) From() string { return m.from.Address }

// MessageID returns the generated Message-ID without angle brackets.
func (m *Message) MessageID() string { return m.messageID }

// Recipients returns the addresses of one recipient category.
func (m *Message) Recipients(t RecipientType) []string {
	switch t {
	case Cc:
		return addressStrings(m.cc)
	case Bcc:
		return addressStrings(m.bcc)
	default:
		return addressStrings(m.to)
	}
}

// Envelope returns every distinct recipient address for RCPT TO.
func (m *Message) Envelope() []string {
	all := make([]string, 0, len(m.to)+len(m.cc)+len(m.bcc))
	all = append(all, addressStrings(m.to)...)
	all = append(all, addressStrings(m.cc)...)
	all = append(all, addressStrings(m.bcc)...)
	return lo.Uniq(all)
}

// Parts returns a copy of the parts in container order.
func (m *Message) Parts() []Part {
	out := make([]Part, len(m.parts))
	for i, p := range m.parts {
		p.Content = append([]byte(nil), p.Content...)
		out[i] = p
	}
	return out
}

func (m *Message) header() mail.Header {
	var h mail.Header
	h.SetDate(m.date)
	h.SetSubject(m.subject)
	h.SetAddressList("From", []*mail.Address{m.from})
	if m.replyTo != nil {
		h.SetAddressList("Reply-To", []*mail.Address{m.replyTo})
	}
	if len(m.to) > 0 {
		h.SetAddressList("To", m.to)
	}
	if len(m.cc) > 0 {
		h.SetAddressList("Cc", m.cc)
	}
	h.SetMessageID(m.messageID)
	h.Set("MIME-Version", "1.0")
	return h
}

// WriteTo serializes the message as a multipart/mixed document.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	mw, err := mail.CreateWriter(cw, m.header())
	if err != nil {
		return cw.n, &ComposeError{Op: "header", Err: err}
	}

	for i, p := range m.parts {
		if err := writePart(mw, p); err != nil {
			return cw.n, &ComposeError{Op: fmt.Sprintf("part %d", i), Err: err}
		}
	}

	if err := mw.Close(); err != nil {
		return cw.n, &ComposeError{Op: "close", Err: err}
	}
	return cw.n, nil
}

// Bytes returns the serialized message.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(mw *mail.Writer, p Part) error {
	var (
		w   io.WriteCloser
		err error
	)

	switch p.Kind {
	case PartBody:
		var h mail.InlineHeader
		h.Set("Content-Type", p.ContentType)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err = mw.CreateSingleInline(h)
	default:
		var h mail.AttachmentHeader
		h.Set("Content-Type", p.ContentType)
		h.SetFilename(p.Filename)
		h.Set("Content-Transfer-Encoding", "base64")
		if p.ContentID != "" {
			h.Set("Content-ID", "<"+p.ContentID+">")
		}
		w, err = mw.CreateAttachment(h)
	}
	if err != nil {
		return err
	}

	if _, err := w.Write(p.Content); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
