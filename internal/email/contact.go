// Package email defines the canonical message model: contacts, bodies,
// attachments and the validated, immutable Email aggregate built by Builder.
package email

import (
	"net/mail"
	"strings"
)

// Contact is a single mailbox. Address is required; Name is the optional
// display name and is empty when absent.
type Contact struct {
	Address string
	Name    string
}

// NewContact returns a Contact with surrounding whitespace removed.
func NewContact(address, name string) Contact {
	return Contact{Address: strings.TrimSpace(address), Name: strings.TrimSpace(name)}
}

// ParseContact parses a raw address such as "Jane <jane@example.com>" or
// "jane@example.com". Input that is not a valid RFC 5322 address is kept
// verbatim (trimmed) as the address so validation can decide what to do
// with it.
func ParseContact(raw string) Contact {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Contact{}
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return Contact{Address: raw}
	}
	return Contact{Address: addr.Address, Name: addr.Name}
}

// IsZero reports whether the contact has no usable address.
func (c Contact) IsZero() bool {
	return strings.TrimSpace(c.Address) == ""
}

// String formats the contact for a message header.
func (c Contact) String() string {
	if c.Name == "" {
		return c.Address
	}
	return (&mail.Address{Name: c.Name, Address: c.Address}).String()
}

// key is the identity used for recipient set membership.
func (c Contact) key() string {
	return strings.ToLower(strings.TrimSpace(c.Address))
}
