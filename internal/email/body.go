package email

import (
	"fmt"
	"strings"
)

// BodyType identifies the rendering of a Body.
type BodyType int

const (
	BodyTypeText BodyType = iota
	BodyTypeHTML
)

// MediaType returns the MIME media type for the body type.
func (t BodyType) MediaType() string {
	if t == BodyTypeHTML {
		return "text/html"
	}
	return "text/plain"
}

func (t BodyType) String() string {
	if t == BodyTypeHTML {
		return "html"
	}
	return "text"
}

// ParseBodyType accepts "text" or "html" (case-insensitive).
func ParseBodyType(s string) (BodyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "plain", "text/plain":
		return BodyTypeText, nil
	case "html", "text/html":
		return BodyTypeHTML, nil
	default:
		return BodyTypeText, fmt.Errorf("unknown body type %q", s)
	}
}

// Body is one rendering of the message content.
type Body struct {
	Type    BodyType
	Content string
}

// TextBody returns a plain-text Body.
func TextBody(content string) Body {
	return Body{Type: BodyTypeText, Content: content}
}

// HTMLBody returns an HTML Body.
func HTMLBody(content string) Body {
	return Body{Type: BodyTypeHTML, Content: content}
}

// TrackLinks declares which body renderings should have their links
// rewritten for click tracking. Backends interpret it.
type TrackLinks int

const (
	TrackLinksNone TrackLinks = iota
	TrackLinksHTML
	TrackLinksText
	TrackLinksAll
)

func (t TrackLinks) String() string {
	switch t {
	case TrackLinksHTML:
		return "html"
	case TrackLinksText:
		return "text"
	case TrackLinksAll:
		return "all"
	default:
		return "none"
	}
}

// Enabled reports whether any link tracking was requested.
func (t TrackLinks) Enabled() bool {
	return t != TrackLinksNone
}

// ParseTrackLinks accepts none, html, text or all.
func ParseTrackLinks(s string) (TrackLinks, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TrackLinksNone, nil
	case "html":
		return TrackLinksHTML, nil
	case "text":
		return TrackLinksText, nil
	case "all":
		return TrackLinksAll, nil
	default:
		return TrackLinksNone, fmt.Errorf("unknown track links value %q", s)
	}
}
