package email

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// readChunkSize bounds each read when draining a file or stream.
const readChunkSize = 32 * 1024

// Attachment is an immutable file attached to an Email. Its content is
// owned by the attachment and never shared with the caller.
type Attachment struct {
	filename    string
	contentType string
	id          string
	content     []byte
}

// NewAttachment builds an attachment from in-memory bytes.
func NewAttachment(filename, contentType string, content []byte) (Attachment, error) {
	return NewAttachmentBuilder().
		Filename(filename).
		ContentType(contentType).
		Content(content).
		Build()
}

func (a Attachment) Filename() string    { return a.filename }
func (a Attachment) ContentType() string { return a.contentType }

// ID returns the content identifier used for inline references, if set.
func (a Attachment) ID() (string, bool) {
	return a.id, a.id != ""
}

// Content returns a copy of the attachment bytes.
func (a Attachment) Content() []byte {
	out := make([]byte, len(a.content))
	copy(out, a.content)
	return out
}

// Size returns the content length in bytes.
func (a Attachment) Size() int { return len(a.content) }

// Reader returns a read-only view over the content.
func (a Attachment) Reader() io.Reader { return bytes.NewReader(a.content) }

// AttachmentBuilder accumulates attachment fields. File and reader sources
// are drained when they are set, so Build never performs I/O.
type AttachmentBuilder struct {
	filename    string
	contentType string
	id          string
	content     []byte
	hasContent  bool
	err         error
}

func NewAttachmentBuilder() *AttachmentBuilder {
	return &AttachmentBuilder{}
}

func (b *AttachmentBuilder) Filename(name string) *AttachmentBuilder {
	b.filename = strings.TrimSpace(name)
	return b
}

func (b *AttachmentBuilder) ContentType(ct string) *AttachmentBuilder {
	b.contentType = strings.TrimSpace(ct)
	return b
}

// ID sets the content identifier, without angle brackets.
func (b *AttachmentBuilder) ID(id string) *AttachmentBuilder {
	b.id = strings.Trim(strings.TrimSpace(id), "<>")
	return b
}

// Content copies content into the builder. A nil slice leaves the content
// unset; an empty non-nil slice is a valid empty attachment.
func (b *AttachmentBuilder) Content(content []byte) *AttachmentBuilder {
	if content == nil {
		b.content, b.hasContent = nil, false
		return b
	}
	b.content = make([]byte, len(content))
	copy(b.content, content)
	b.hasContent = true
	b.err = nil
	return b
}

// ContentFromFile reads the whole file. The filename defaults to the base
// name of path when none has been set.
func (b *AttachmentBuilder) ContentFromFile(path string) *AttachmentBuilder {
	f, err := os.Open(path)
	if err != nil {
		b.fail(path, err)
		return b
	}
	defer f.Close()

	if b.filename == "" {
		b.filename = filepath.Base(path)
	}
	return b.drain(path, f)
}

// ContentFromReader drains r.
func (b *AttachmentBuilder) ContentFromReader(r io.Reader) *AttachmentBuilder {
	if r == nil {
		b.fail("reader", errors.New("nil reader"))
		return b
	}
	return b.drain("reader", r)
}

func (b *AttachmentBuilder) drain(source string, r io.Reader) *AttachmentBuilder {
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			b.fail(source, err)
			return b
		}
	}

	b.content = buf.Bytes()
	if b.content == nil {
		b.content = []byte{}
	}
	b.hasContent = true
	b.err = nil
	return b
}

func (b *AttachmentBuilder) fail(source string, err error) {
	b.content, b.hasContent = nil, false
	b.err = &AttachmentReadError{Source: source, Err: err}
}

// Build checks filename, content type and content in that order.
func (b *AttachmentBuilder) Build() (Attachment, error) {
	if b.err != nil {
		return Attachment{}, b.err
	}
	if b.filename == "" {
		return Attachment{}, &InvalidAttachmentError{Field: "filename"}
	}
	if b.contentType == "" {
		return Attachment{}, &InvalidAttachmentError{Field: "content type"}
	}
	if !b.hasContent {
		return Attachment{}, &InvalidAttachmentError{Field: "content"}
	}

	content := make([]byte, len(b.content))
	copy(content, b.content)
	return Attachment{
		filename:    b.filename,
		contentType: b.contentType,
		id:          b.id,
		content:     content,
	}, nil
}
