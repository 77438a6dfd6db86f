package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/email"
	"github.com/shineum/maildispatch/internal/parser"
	"github.com/shineum/maildispatch/internal/provider"
)

var (
	errInvalidMessage = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Message rejected",
	}
	errUnsupported = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 1},
		Message:      "Message content not supported by delivery backend",
	}
	errTempFailure = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary failure, please try again later",
	}
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errBadCredentials = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
)

// session holds the state of one SMTP transaction.
type session struct {
	backend       *backend
	remote        string
	authenticated bool
	user          string

	from string
	to   []string
}

func (s *session) AuthMechanisms() []string {
	if !s.backend.auth.Enabled() {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.backend.auth.Enabled() || mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnsupported
	}
	return &authServer{
		Server: s.backend.auth.PlainServer(func(username string) {
			s.authenticated = true
			s.user = username
		}),
		remote: s.remote,
		logger: s.backend.logger,
	}, nil
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.from = from
	s.to = nil
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	logger := s.backend.logger.With("remote", s.remote, "mail_from", s.from, "rcpt_count", len(s.to))

	// Read fully first so an oversized message surfaces the server's
	// size error rather than a parse error.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		var smtpErr *gosmtp.SMTPError
		if errors.As(err, &smtpErr) {
			return smtpErr
		}
		logger.Error("error reading DATA", "error", err)
		return errTempFailure
	}

	msg, err := parser.Parse(&buf, parser.Envelope{From: s.from, Recipients: s.to})
	if err != nil {
		logger.Warn("rejecting message", "error", err)
		return errInvalidMessage
	}

	ctx, cancel := context.WithTimeout(s.backend.baseCtx, s.backend.sendTimeout)
	defer cancel()

	resp, err := s.backend.sender.Send(ctx, "", msg)
	if err != nil {
		return replyFor(err)
	}
	logger.Info("message relayed", "provider", resp.Provider, "message_id", resp.MessageID)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error { return nil }

// replyFor maps a dispatch failure onto an SMTP reply: content the backend
// cannot take is permanent, everything else is worth a retry by the client.
func replyFor(err error) *gosmtp.SMTPError {
	var validation *email.ValidationError
	var compose *composer.ComposeError
	switch {
	case errors.Is(err, provider.ErrAttachmentsUnsupported),
		errors.Is(err, provider.ErrTrackingUnsupported):
		return errUnsupported
	case errors.As(err, &validation),
		errors.As(err, &compose),
		errors.Is(err, email.ErrInvalidAttachment):
		return errInvalidMessage
	default:
		return errTempFailure
	}
}

// authServer logs failed attempts and answers them with 535.
type authServer struct {
	sasl.Server
	remote string
	logger *slog.Logger
}

func (a *authServer) Next(response []byte) ([]byte, bool, error) {
	challenge, done, err := a.Server.Next(response)
	if err != nil {
		a.logger.Warn("smtp authentication failed", "remote", a.remote, "error", err)
		return nil, true, errBadCredentials
	}
	return challenge, done, nil
}
