package email

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownBody renders Markdown source into an HTML Body.
func MarkdownBody(src string) (Body, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return Body{}, fmt.Errorf("render markdown: %w", err)
	}
	return HTMLBody(buf.String()), nil
}
