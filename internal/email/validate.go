package email

import "strings"

// validate checks the invariants in order and stops at the first failure.
func validate(b *Builder) error {
	if b.to.len() == 0 && b.cc.len() == 0 && b.bcc.len() == 0 {
		return &ValidationError{Kind: MissingRecipient}
	}
	if b.from.IsZero() {
		return &ValidationError{Kind: MissingSender}
	}
	if strings.TrimSpace(b.subject) == "" {
		return &ValidationError{Kind: MissingSubject}
	}
	return nil
}
