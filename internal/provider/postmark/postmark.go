package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the Postmark provider.
const Name = "postmark"

const defaultEndpoint = "https://api.postmarkapp.com/email"

// Config holds Postmark credentials.
type Config struct {
	ServerToken string
	// Sender overrides the From address when set. Postmark requires a
	// confirmed sender signature.
	Sender        string
	MessageStream string
}

// Provider sends mail through Postmark.
type Provider struct {
	token      string
	sender     string
	stream     string
	endpoint   string
	httpClient *http.Client
}

func New(cfg Config) *Provider {
	return newWithOverrides(cfg, defaultEndpoint, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Provider with a custom endpoint and HTTP
// client, used for testing.
func newWithOverrides(cfg Config, endpoint string, client *http.Client) *Provider {
	return &Provider{
		token:      cfg.ServerToken,
		sender:     cfg.Sender,
		stream:     cfg.MessageStream,
		endpoint:   endpoint,
		httpClient: client,
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsTrackingLinks() bool { return true }
func (p *Provider) SupportsAttachments() bool   { return true }

func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	bodyJSON, err := json.Marshal(buildRequest(msg, p.sender, p.stream))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: fmt.Errorf("failed to marshal request body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var out sendResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode == http.StatusOK && decodeErr == nil && out.ErrorCode == 0 {
		return &provider.Response{
			Provider:   Name,
			MessageID:  out.MessageID,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
		}, nil
	}

	se := &provider.SendError{Provider: Name, StatusCode: resp.StatusCode}
	if decodeErr == nil && out.Message != "" {
		se.Code = strconv.Itoa(out.ErrorCode)
		se.Message = out.Message
	} else {
		se.Message = string(raw)
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return nil, se
}
