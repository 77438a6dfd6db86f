package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Contact
	}{
		{"a@x.com", Contact{Address: "a@x.com"}},
		{"  a@x.com  ", Contact{Address: "a@x.com"}},
		{"Jane Doe <jane@x.com>", Contact{Address: "jane@x.com", Name: "Jane Doe"}},
		{"<jane@x.com>", Contact{Address: "jane@x.com"}},
		{"not an address", Contact{Address: "not an address"}},
		{"", Contact{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseContact(tt.in))
		})
	}
}

func TestContact_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a@x.com", Contact{Address: "a@x.com"}.String())
	assert.Equal(t, `"Jane Doe" <jane@x.com>`, Contact{Address: "jane@x.com", Name: "Jane Doe"}.String())
	assert.True(t, Contact{Address: " "}.IsZero())
	assert.False(t, NewContact(" a@x.com ", "").IsZero())
}

func TestParseTrackLinks(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]TrackLinks{
		"":     TrackLinksNone,
		"none": TrackLinksNone,
		"HTML": TrackLinksHTML,
		"text": TrackLinksText,
		"all":  TrackLinksAll,
	} {
		got, err := ParseTrackLinks(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if in != "" && in != "HTML" {
			assert.Equal(t, in, got.String())
		}
	}

	_, err := ParseTrackLinks("everything")
	assert.Error(t, err)
}

func TestBodyType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text/html", BodyTypeHTML.MediaType())
	assert.Equal(t, "text/plain", BodyTypeText.MediaType())

	bt, err := ParseBodyType("HTML")
	assert.NoError(t, err)
	assert.Equal(t, BodyTypeHTML, bt)

	_, err = ParseBodyType("rtf")
	assert.Error(t, err)
}

func TestMarkdownBody(t *testing.T) {
	t.Parallel()

	body, err := MarkdownBody("# Welcome\n\nVisit https://example.com")
	assert.NoError(t, err)
	assert.Equal(t, BodyTypeHTML, body.Type)
	assert.Contains(t, body.Content, "<h1>Welcome</h1>")
	assert.Contains(t, body.Content, `<a href="https://example.com">`)
}
