package smtp

import (
	"context"
	"log/slog"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/provider"
)

// Sender delivers a parsed message. An empty provider name selects the
// default backend. *provider.Dispatcher satisfies it.
type Sender interface {
	Send(ctx context.Context, name string, e *email.Email) (*provider.Response, error)
}

// backend creates one session per connection.
type backend struct {
	sender      Sender
	auth        *Authenticator
	sendTimeout time.Duration
	logger      *slog.Logger
	baseCtx     context.Context
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}
	b.logger.Debug("smtp connection accepted", "remote", remote, "helo", c.Hostname())

	return &session{
		backend: b,
		remote:  remote,
	}, nil
}
