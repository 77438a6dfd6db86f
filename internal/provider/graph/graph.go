package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the Graph provider.
const Name = "msgraph"

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	Sender          string
	SaveToSentItems bool
}

// GraphProvider sends emails via the Microsoft Graph API using OAuth2
// client credentials authentication.
type GraphProvider struct {
	sender          string
	graphURL        string
	saveToSentItems bool
	httpClient      *http.Client
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", url.PathEscape(cfg.Sender))

	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a GraphProvider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg GraphProviderConfig, graphURL, tokenURL string, client *http.Client) *GraphProvider {
	return &GraphProvider{
		sender:          cfg.Sender,
		graphURL:        graphURL,
		saveToSentItems: cfg.SaveToSentItems,
		httpClient:      newAuthClient(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
	}
}

// Name returns the provider name.
func (g *GraphProvider) Name() string { return Name }

func (g *GraphProvider) SupportsTrackingLinks() bool { return false }
func (g *GraphProvider) SupportsAttachments() bool   { return true }

// Send delivers an email message via the Microsoft Graph API sendMail
// endpoint. A single request is made; failures are returned as
// *provider.SendError.
func (g *GraphProvider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	bodyJSON, err := json.Marshal(buildSendMailRequest(msg, g.saveToSentItems))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: fmt.Errorf("failed to marshal request body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		requestID := resp.Header.Get("request-id")
		slog.Debug("graph sendMail accepted", "request_id", requestID, "sender", g.sender)
		return &provider.Response{
			Provider:   Name,
			MessageID:  requestID,
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
		}, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, classifyError(resp.StatusCode, body)
}

// classifyError builds a SendError from a non-success Graph response.
func classifyError(statusCode int, body []byte) *provider.SendError {
	se := &provider.SendError{Provider: Name, StatusCode: statusCode}

	var graphErrResp graphErrorResponse
	if err := json.Unmarshal(body, &graphErrResp); err == nil && graphErrResp.Error.Message != "" {
		se.Code = graphErrResp.Error.Code
		se.Message = graphErrResp.Error.Message
		return se
	}

	se.Message = string(body)
	if se.Message == "" {
		se.Message = http.StatusText(statusCode)
	}
	return se
}

// transportError covers failed token acquisition as well as network errors.
func transportError(err error) *provider.SendError {
	se := &provider.SendError{Provider: Name, Err: err}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		se.Code = retrieveErr.ErrorCode
		if retrieveErr.Response != nil {
			se.StatusCode = retrieveErr.Response.StatusCode
		}
		se.Message = "token request failed: " + retrieveErr.Error()
	}
	return se
}
