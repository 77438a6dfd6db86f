// Package smtp implements a Provider that relays composed messages to an
// upstream SMTP server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Name is the registry key of the upstream SMTP provider.
const Name = "smtp"

// TLSMode selects how the connection to the upstream server is secured.
type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSStartTLS TLSMode = "starttls"
	TLSImplicit TLSMode = "tls"
)

// ParseTLSMode parses a configured mode. The empty string means starttls.
func ParseTLSMode(s string) (TLSMode, error) {
	switch m := TLSMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TLSStartTLS, nil
	case TLSNone, TLSStartTLS, TLSImplicit:
		return m, nil
	default:
		return "", fmt.Errorf("unknown smtp tls mode %q", s)
	}
}

// Config describes the upstream server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      TLSMode
	// LocalName is sent in EHLO. Defaults to "localhost".
	LocalName string
	// TLSConfig overrides the client TLS settings, mostly for tests.
	TLSConfig   *tls.Config
	DialTimeout time.Duration
}

// Provider delivers mail over SMTP. Each Send opens its own connection.
type Provider struct {
	cfg      Config
	composer *composer.Composer
}

// New creates a Provider. A nil composer gets the default configuration.
func New(cfg Config, c *composer.Composer) *Provider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSStartTLS
	}
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if c == nil {
		c = composer.New(composer.Config{})
	}
	return &Provider{cfg: cfg, composer: c}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) SupportsTrackingLinks() bool { return false }
func (p *Provider) SupportsAttachments() bool   { return true }

func (p *Provider) Send(ctx context.Context, msg *email.Email) (*provider.Response, error) {
	m, err := p.composer.Compose(msg)
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}
	raw, err := m.Bytes()
	if err != nil {
		return nil, &provider.SendError{Provider: Name, Err: err}
	}

	c, err := p.dial(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	defer c.Close()

	// The client API is not context aware; closing the client unblocks it.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if err := c.Hello(p.cfg.LocalName); err != nil {
		return nil, classifyError(err)
	}
	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return nil, classifyError(err)
		}
	}
	if err := c.SendMail(m.From(), m.Envelope(), bytes.NewReader(raw)); err != nil {
		if ctx.Err() != nil {
			return nil, &provider.SendError{Provider: Name, Err: ctx.Err()}
		}
		return nil, classifyError(err)
	}
	// The message is already accepted; a failed QUIT changes nothing.
	_ = c.Quit()

	return &provider.Response{
		Provider:   Name,
		MessageID:  m.MessageID(),
		StatusCode: 250,
	}, nil
}

func (p *Provider) dial(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}

	switch p.cfg.TLS {
	case TLSImplicit:
		td := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig()}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return gosmtp.NewClient(conn), nil
	case TLSStartTLS:
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		c, err := gosmtp.NewClientStartTLS(conn, p.tlsConfig())
		if err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	default:
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return gosmtp.NewClient(conn), nil
	}
}

func (p *Provider) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if p.cfg.TLSConfig != nil {
		cfg = p.cfg.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.cfg.Host
	}
	return cfg
}

// classifyError maps SMTP replies onto SendError, keeping the reply code
// and enhanced status code.
func classifyError(err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		se := &provider.SendError{
			Provider:   Name,
			StatusCode: smtpErr.Code,
			Message:    smtpErr.Message,
			Err:        err,
		}
		if ec := smtpErr.EnhancedCode; ec[0] > 0 {
			se.Code = fmt.Sprintf("%d.%d.%d", ec[0], ec[1], ec[2])
		}
		return se
	}
	return &provider.SendError{Provider: Name, Err: err}
}
