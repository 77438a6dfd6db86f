package email

import (
	"errors"
	"fmt"
)

// ValidationKind names the build-time invariant an Email violated.
type ValidationKind int

const (
	MissingRecipient ValidationKind = iota + 1
	MissingSender
	MissingSubject
)

func (k ValidationKind) String() string {
	switch k {
	case MissingRecipient:
		return "MissingRecipient"
	case MissingSender:
		return "MissingSender"
	case MissingSubject:
		return "MissingSubject"
	default:
		return fmt.Sprintf("ValidationKind(%d)", int(k))
	}
}

var (
	ErrMissingRecipient = &ValidationError{Kind: MissingRecipient}
	ErrMissingSender    = &ValidationError{Kind: MissingSender}
	ErrMissingSubject   = &ValidationError{Kind: MissingSubject}

	// ErrInvalidAttachment matches every attachment construction failure.
	ErrInvalidAttachment = errors.New("invalid attachment")
)

// ValidationError is returned by Builder.Build for the first invariant
// that does not hold.
type ValidationError struct {
	Kind ValidationKind
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingRecipient:
		return "email: at least one to, cc or bcc recipient is required"
	case MissingSender:
		return "email: sender address is required"
	case MissingSubject:
		return "email: subject is required"
	default:
		return "email: validation failed"
	}
}

// Is matches any *ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// InvalidAttachmentError reports a required attachment field that was
// not set at build time.
type InvalidAttachmentError struct {
	Field string
}

func (e *InvalidAttachmentError) Error() string {
	return fmt.Sprintf("invalid attachment: %s is required", e.Field)
}

func (e *InvalidAttachmentError) Is(target error) bool {
	return target == ErrInvalidAttachment
}

// AttachmentReadError wraps the I/O failure hit while draining an
// attachment source.
type AttachmentReadError struct {
	Source string
	Err    error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("invalid attachment: read %s: %v", e.Source, e.Err)
}

func (e *AttachmentReadError) Unwrap() error { return e.Err }

func (e *AttachmentReadError) Is(target error) bool {
	return target == ErrInvalidAttachment
}
