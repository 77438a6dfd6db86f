// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"

	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the SES provider.
const Name = "ses"

const charsetUTF8 = "UTF-8"

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender overrides the From address of every message when set. SES
	// only accepts verified identities.
	Sender string
	// ConfigurationSet is passed through as ConfigurationSetName.
	ConfigurationSet string
}

// SESProvider sends emails via the AWS SES v2 API.
type SESProvider struct {
	sender           string
	configurationSet string
	client           SendEmailAPI
	composer         *composer.Composer
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig, c *composer.Composer) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg), c)
	p.configurationSet = cfg.ConfigurationSet
	return p, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI, c *composer.Composer) *SESProvider {
	if c == nil {
		c = composer.New(composer.Config{})
	}
	return &SESProvider{
		sender:   sender,
		client:   client,
		composer: c,
	}
}

// Name returns the provider name.
func (s *SESProvider) Name() string { return Name }

func (s *SESProvider) SupportsTrackingLinks() bool { return false }
func (s *SESProvider) SupportsAttachments() bool   { return true }

// Send delivers an email message via AWS SES v2.
// Messages with attachments go out as a raw MIME message built by the
// composer; everything else uses the SES simple content format.
func (s *SESProvider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	var (
		input *sesv2.SendEmailInput
		err   error
	)

	if msg.HasAttachments() {
		input, err = s.buildRawInput(msg)
		if err != nil {
			return nil, &provider.SendError{Provider: Name, Err: err}
		}
	} else {
		input = s.buildSimpleInput(msg)
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifyError(err)
	}

	return &provider.Response{
		Provider:   Name,
		MessageID:  aws.ToString(out.MessageId),
		StatusCode: 200,
	}, nil
}

func (s *SESProvider) from(msg *email.Email) string {
	if s.sender != "" {
		return s.sender
	}
	return msg.From().String()
}

func destination(msg *email.Email) *types.Destination {
	return &types.Destination{
		ToAddresses:  contactStrings(msg.To()),
		CcAddresses:  contactStrings(msg.Cc()),
		BccAddresses: contactStrings(msg.Bcc()),
	}
}

// buildSimpleInput creates a SES SendEmailInput for emails without attachments.
// The text and html shortcut fields fill their slots first; body only fills
// a slot left empty.
func (s *SESProvider) buildSimpleInput(msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}

	if html, ok := msg.HTML(); ok {
		body.Html = utf8Content(html)
	}
	if text, ok := msg.Text(); ok {
		body.Text = utf8Content(text)
	}
	if b, ok := msg.Body(); ok {
		if b.Type == email.BodyTypeHTML && body.Html == nil {
			body.Html = utf8Content(b.Content)
		}
		if b.Type == email.BodyTypeText && body.Text == nil {
			body.Text = utf8Content(b.Content)
		}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from(msg)),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject()),
				Body:    body,
			},
		},
	}
	if reply, ok := msg.ReplyTo(); ok {
		input.ReplyToAddresses = []string{reply.String()}
	}
	return input
}

// buildRawInput composes the MIME message. The destination carries every
// recipient since bcc never appears in the raw header.
func (s *SESProvider) buildRawInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	m, err := s.composer.Compose(msg)
	if err != nil {
		return nil, err
	}
	raw, err := m.Bytes()
	if err != nil {
		return nil, err
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from(msg)),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}, nil
}

// classifyError maps an SDK error onto a SendError carrying the SES error
// code and HTTP status when available.
func classifyError(err error) *provider.SendError {
	se := &provider.SendError{Provider: Name, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		se.Code = apiErr.ErrorCode()
		se.Message = apiErr.ErrorMessage()
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		se.StatusCode = respErr.HTTPStatusCode()
	}
	return se
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String(charsetUTF8)}
}

func contactStrings(cs []email.Contact) []string {
	return lo.Map(cs, func(c email.Contact, _ int) string { return c.String() })
}
