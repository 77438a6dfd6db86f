package email

// Builder accumulates the fields of an Email. Single-valued fields keep
// the last value set; recipients and attachments accumulate. Build does
// not consume the builder: it may be built again after further changes,
// and earlier results are unaffected.
type Builder struct {
	from        Contact
	replyTo     *Contact
	to          recipientSet
	cc          recipientSet
	bcc         recipientSet
	subject     string
	body        *Body
	text        *string
	html        *string
	attachments []Attachment
	trackLinks  TrackLinks
	trackOpens  bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

// From sets the sender from a raw address such as "Jane <jane@example.com>".
func (b *Builder) From(addr string) *Builder {
	b.from = ParseContact(addr)
	return b
}

func (b *Builder) FromContact(c Contact) *Builder {
	b.from = c
	return b
}

func (b *Builder) ReplyTo(addr string) *Builder {
	c := ParseContact(addr)
	b.replyTo = &c
	return b
}

func (b *Builder) ReplyToContact(c Contact) *Builder {
	b.replyTo = &c
	return b
}

// To adds primary recipients from raw address strings.
func (b *Builder) To(addrs ...string) *Builder {
	b.to.addRaw(addrs)
	return b
}

func (b *Builder) ToContacts(cs ...Contact) *Builder {
	b.to.add(cs)
	return b
}

func (b *Builder) Cc(addrs ...string) *Builder {
	b.cc.addRaw(addrs)
	return b
}

func (b *Builder) CcContacts(cs ...Contact) *Builder {
	b.cc.add(cs)
	return b
}

func (b *Builder) Bcc(addrs ...string) *Builder {
	b.bcc.addRaw(addrs)
	return b
}

func (b *Builder) BccContacts(cs ...Contact) *Builder {
	b.bcc.add(cs)
	return b
}

func (b *Builder) Subject(s string) *Builder {
	b.subject = s
	return b
}

func (b *Builder) Body(body Body) *Builder {
	b.body = &body
	return b
}

// Text sets the plain-text shortcut field.
func (b *Builder) Text(s string) *Builder {
	b.text = &s
	return b
}

// HTML sets the HTML shortcut field.
func (b *Builder) HTML(s string) *Builder {
	b.html = &s
	return b
}

func (b *Builder) Attach(atts ...Attachment) *Builder {
	b.attachments = append(b.attachments, atts...)
	return b
}

func (b *Builder) TrackOpens(on bool) *Builder {
	b.trackOpens = on
	return b
}

func (b *Builder) TrackLinks(t TrackLinks) *Builder {
	b.trackLinks = t
	return b
}

func (b *Builder) TrackLinksInHTML() *Builder        { return b.TrackLinks(TrackLinksHTML) }
func (b *Builder) TrackLinksInText() *Builder        { return b.TrackLinks(TrackLinksText) }
func (b *Builder) TrackLinksInHTMLAndText() *Builder { return b.TrackLinks(TrackLinksAll) }

// Build validates the accumulated fields and returns a new Email. It
// returns a *ValidationError for the first failed check.
func (b *Builder) Build() (*Email, error) {
	if err := validate(b); err != nil {
		return nil, err
	}

	e := &Email{
		from:       b.from,
		to:         cloneContacts(b.to.items),
		cc:         cloneContacts(b.cc.items),
		bcc:        cloneContacts(b.bcc.items),
		subject:    b.subject,
		trackLinks: b.trackLinks,
		trackOpens: b.trackOpens,
	}
	if b.replyTo != nil {
		r := *b.replyTo
		e.replyTo = &r
	}
	if b.body != nil {
		body := *b.body
		e.body = &body
	}
	if b.text != nil {
		s := *b.text
		e.text = &s
	}
	if b.html != nil {
		s := *b.html
		e.html = &s
	}
	if len(b.attachments) > 0 {
		e.attachments = make([]Attachment, len(b.attachments))
		copy(e.attachments, b.attachments)
	}
	return e, nil
}

// recipientSet keeps contacts unique by address, in insertion order.
type recipientSet struct {
	items []Contact
	seen  map[string]struct{}
}

func (s *recipientSet) addRaw(addrs []string) {
	for _, a := range addrs {
		s.add([]Contact{ParseContact(a)})
	}
}

func (s *recipientSet) add(cs []Contact) {
	for _, c := range cs {
		if c.IsZero() {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]struct{})
		}
		if _, ok := s.seen[c.key()]; ok {
			continue
		}
		s.seen[c.key()] = struct{}{}
		s.items = append(s.items, c)
	}
}

func (s *recipientSet) len() int { return len(s.items) }
