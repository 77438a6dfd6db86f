package email

// Email is a validated, immutable message. It is only produced by
// Builder.Build and the derive methods below; none of its accessors
// expose internal storage.
type Email struct {
	from        Contact
	replyTo     *Contact
	to          []Contact
	cc          []Contact
	bcc         []Contact
	subject     string
	body        *Body
	text        *string
	html        *string
	attachments []Attachment
	trackLinks  TrackLinks
	trackOpens  bool
}

func (e *Email) From() Contact { return e.from }

func (e *Email) ReplyTo() (Contact, bool) {
	if e.replyTo == nil {
		return Contact{}, false
	}
	return *e.replyTo, true
}

func (e *Email) To() []Contact  { return cloneContacts(e.to) }
func (e *Email) Cc() []Contact  { return cloneContacts(e.cc) }
func (e *Email) Bcc() []Contact { return cloneContacts(e.bcc) }

// Recipients returns every to, cc and bcc contact, in that order.
func (e *Email) Recipients() []Contact {
	out := make([]Contact, 0, len(e.to)+len(e.cc)+len(e.bcc))
	out = append(out, e.to...)
	out = append(out, e.cc...)
	return append(out, e.bcc...)
}

func (e *Email) Subject() string { return e.subject }

func (e *Email) Body() (Body, bool) {
	if e.body == nil {
		return Body{}, false
	}
	return *e.body, true
}

func (e *Email) Text() (string, bool) {
	if e.text == nil {
		return "", false
	}
	return *e.text, true
}

func (e *Email) HTML() (string, bool) {
	if e.html == nil {
		return "", false
	}
	return *e.html, true
}

// Content resolves the single rendering used for MIME composition:
// body, then text, then html.
func (e *Email) Content() (Body, bool) {
	if e.body != nil {
		return *e.body, true
	}
	if e.text != nil {
		return TextBody(*e.text), true
	}
	if e.html != nil {
		return HTMLBody(*e.html), true
	}
	return Body{}, false
}

// ShortcutContent resolves the single rendering used by HTTP API backends:
// the text and html shortcut fields win over body.
func (e *Email) ShortcutContent() (Body, bool) {
	if e.text != nil {
		return TextBody(*e.text), true
	}
	if e.html != nil {
		return HTMLBody(*e.html), true
	}
	if e.body != nil {
		return *e.body, true
	}
	return Body{}, false
}

func (e *Email) Attachments() []Attachment {
	out := make([]Attachment, len(e.attachments))
	copy(out, e.attachments)
	return out
}

func (e *Email) HasAttachments() bool { return len(e.attachments) > 0 }

func (e *Email) TrackLinks() TrackLinks { return e.trackLinks }
func (e *Email) TrackOpens() bool       { return e.trackOpens }

// HasTracking reports whether link or open tracking was requested.
func (e *Email) HasTracking() bool {
	return e.trackLinks.Enabled() || e.trackOpens
}

// WithoutAttachments returns a copy of e with no attachments.
func (e *Email) WithoutAttachments() *Email {
	c := e.clone()
	c.attachments = nil
	return c
}

// WithoutTracking returns a copy of e with link and open tracking off.
func (e *Email) WithoutTracking() *Email {
	c := e.clone()
	c.trackLinks = TrackLinksNone
	c.trackOpens = false
	return c
}

// clone copies slices; attachments and string pointers are immutable and
// may be shared.
func (e *Email) clone() *Email {
	c := *e
	c.to = cloneContacts(e.to)
	c.cc = cloneContacts(e.cc)
	c.bcc = cloneContacts(e.bcc)
	if e.attachments != nil {
		c.attachments = make([]Attachment, len(e.attachments))
		copy(c.attachments, e.attachments)
	}
	return &c
}

func cloneContacts(in []Contact) []Contact {
	if len(in) == 0 {
		return nil
	}
	out := make([]Contact, len(in))
	copy(out, in)
	return out
}
