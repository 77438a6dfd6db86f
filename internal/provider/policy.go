package provider

import (
	"fmt"
	"strings"

	"github.com/shineum/maildispatch/internal/email"
)

// Action is what the dispatcher does when an Email asks for a capability
// the provider lacks.
type Action int

const (
	ActionReject Action = iota
	ActionStrip
)

func (a Action) String() string {
	if a == ActionStrip {
		return "strip"
	}
	return "reject"
}

// ParseAction accepts "reject" or "strip".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return ActionReject, nil
	case "strip":
		return ActionStrip, nil
	default:
		return ActionReject, fmt.Errorf("unknown capability action %q", s)
	}
}

// Policy decides how unsupported capabilities are handled.
type Policy struct {
	Attachments Action
	Tracking    Action
}

// DefaultPolicy rejects attachments a provider cannot deliver and drops
// tracking preferences it cannot honour.
func DefaultPolicy() Policy {
	return Policy{Attachments: ActionReject, Tracking: ActionStrip}
}

// Prepare returns the Email to hand to p under policy. The input is never
// modified; a stripped capability yields a derived copy.
func Prepare(p Provider, e *email.Email, policy Policy) (*email.Email, error) {
	out := e

	if e.HasAttachments() && !p.SupportsAttachments() {
		if policy.Attachments == ActionReject {
			return nil, fmt.Errorf("%s: %w", p.Name(), ErrAttachmentsUnsupported)
		}
		out = out.WithoutAttachments()
	}

	if e.HasTracking() && !p.SupportsTrackingLinks() {
		if policy.Tracking == ActionReject {
			return nil, fmt.Errorf("%s: %w", p.Name(), ErrTrackingUnsupported)
		}
		out = out.WithoutTracking()
	}

	return out, nil
}
