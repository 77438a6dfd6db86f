package ses

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func build(t *testing.T, b *email.Builder) *email.Email {
	t.Helper()
	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p := NewWithClient("sender@example.com", &mockSESClient{}, nil)
	assert.Equal(t, "ses", p.Name())
	assert.True(t, p.SupportsAttachments())
	assert.False(t, p.SupportsTrackingLinks())

	var _ provider.Provider = p
}

func TestSend_SimpleTextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	resp, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("someone@example.com").
		To("to@example.com").
		Subject("Test Subject").
		Text("Hello, World!")))
	require.NoError(t, err)
	assert.Equal(t, "test-message-id", resp.MessageID)
	assert.Equal(t, "ses", resp.Provider)
	assert.Equal(t, 1, mock.callCount)

	input := mock.lastInput
	require.NotNil(t, input.Content.Simple)
	assert.Equal(t, "sender@example.com", *input.FromEmailAddress, "configured sender overrides From")
	assert.Equal(t, "Test Subject", *input.Content.Simple.Subject.Data)
	assert.Equal(t, "UTF-8", *input.Content.Simple.Subject.Charset)
	assert.Equal(t, "Hello, World!", *input.Content.Simple.Body.Text.Data)
	assert.Nil(t, input.Content.Simple.Body.Html)
	assert.Nil(t, input.ConfigurationSetName)
}

func TestSend_FromAddressWithoutOverride(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("Alerts <alerts@example.com>").
		ReplyTo("help@example.com").
		To("to@example.com").
		Subject("s")))
	require.NoError(t, err)

	assert.Equal(t, `"Alerts" <alerts@example.com>`, *mock.lastInput.FromEmailAddress)
	assert.Equal(t, []string{"help@example.com"}, mock.lastInput.ReplyToAddresses)
}

func TestSend_SimpleHtmlEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").
		To("to@example.com").
		Subject("HTML Test").
		Text("Plain text fallback").
		HTML("<h1>Hello</h1>")))
	require.NoError(t, err)

	body := mock.lastInput.Content.Simple.Body
	assert.Equal(t, "<h1>Hello</h1>", *body.Html.Data)
	assert.Equal(t, "UTF-8", *body.Html.Charset)
	assert.Equal(t, "Plain text fallback", *body.Text.Data)
}

func TestSend_ShortcutFieldsWinOverBody(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").
		To("to@example.com").
		Subject("s").
		Body(email.HTMLBody("<p>body</p>")).
		HTML("<p>shortcut</p>")))
	require.NoError(t, err)
	assert.Equal(t, "<p>shortcut</p>", *mock.lastInput.Content.Simple.Body.Html.Data)

	_, err = p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").
		To("to@example.com").
		Subject("s").
		Body(email.HTMLBody("<p>body</p>"))))
	require.NoError(t, err)
	assert.Equal(t, "<p>body</p>", *mock.lastInput.Content.Simple.Body.Html.Data)
}

func TestSend_WithRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").
		To("to1@example.com", "to2@example.com").
		Cc("cc@example.com").
		Bcc("bcc@example.com").
		Subject("Multi-recipient").
		Text("Hello")))
	require.NoError(t, err)

	dest := mock.lastInput.Destination
	assert.Equal(t, []string{"to1@example.com", "to2@example.com"}, dest.ToAddresses)
	assert.Equal(t, []string{"cc@example.com"}, dest.CcAddresses)
	assert.Equal(t, []string{"bcc@example.com"}, dest.BccAddresses)
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	att, err := email.NewAttachment("test.txt", "text/plain", []byte("file content"))
	require.NoError(t, err)

	_, err = p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").
		To("to@example.com").
		Bcc("hidden@example.com").
		Subject("With Attachment").
		Text("See attachment").
		Attach(att)))
	require.NoError(t, err)

	input := mock.lastInput
	require.NotNil(t, input.Content.Raw)
	assert.Nil(t, input.Content.Simple)
	assert.Equal(t, []string{"hidden@example.com"}, input.Destination.BccAddresses)

	raw := input.Content.Raw.Data
	assert.Contains(t, string(raw), "Subject: With Attachment")
	assert.Contains(t, string(raw), "multipart/mixed")
	assert.NotContains(t, string(raw), "hidden@example.com")

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	assert.Equal(t, "to@example.com", to[0].Address)

	var filenames []string
	var bodies []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(content))
		if h, ok := part.Header.(*mail.AttachmentHeader); ok {
			name, _ := h.Filename()
			filenames = append(filenames, name)
		}
	}
	assert.Equal(t, []string{"See attachment", "file content"}, bodies)
	assert.Equal(t, []string{"test.txt"}, filenames)
}

func TestSend_NoRetryOnError(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("transient error")
		},
	}
	p := NewWithClient("sender@example.com", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").To("to@example.com").Subject("Fail Test").Text("Hello")))
	require.Error(t, err)
	assert.Equal(t, 1, mock.callCount)

	var se *provider.SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "ses", se.Provider)
	assert.Contains(t, err.Error(), "transient error")
}

func TestSend_APIErrorIsClassified(t *testing.T) {
	t.Parallel()

	apiErr := &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."}
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &awshttp.ResponseError{
				ResponseError: &smithyhttp.ResponseError{
					Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusBadRequest}},
					Err:      apiErr,
				},
				RequestID: "req-1",
			}
		},
	}
	p := NewWithClient("sender@example.com", mock, nil)

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").To("to@example.com").Subject("s")))

	var se *provider.SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "MessageRejected", se.Code)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "Email address is not verified.", se.Message)
	assert.ErrorIs(t, err, apiErr)
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, ctx.Err()
		},
	}
	p := NewWithClient("sender@example.com", mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Send(ctx, build(t, email.NewBuilder().
		From("sender@example.com").To("to@example.com").Subject("Cancel Test")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_ConfigurationSet(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)
	p.configurationSet = "transactional"

	_, err := p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").To("to@example.com").Subject("s")))
	require.NoError(t, err)
	assert.Equal(t, "transactional", aws.ToString(mock.lastInput.ConfigurationSetName))
}

func TestSend_RawComposeFailure(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock, nil)

	att, err := email.NewAttachment("a.txt", "text/plain", []byte("x"))
	require.NoError(t, err)

	_, err = p.Send(context.Background(), build(t, email.NewBuilder().
		From("sender@example.com").To("not an address").Subject("s").Attach(att)))
	require.Error(t, err)
	assert.Equal(t, 0, mock.callCount)
	assert.True(t, strings.Contains(err.Error(), "compose"))
}
