// Package smtp implements the SMTP relay ingress: a go-smtp server that
// parses each accepted message and hands it to the dispatcher.
package smtp

import (
	"crypto/subtle"
	"errors"

	"github.com/emersion/go-sasl"
)

// ErrAuthFailed is returned for rejected credentials.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator handles SMTP AUTH verification against configured credentials.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If both username and password are empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify checks a username and password pair.
func (a *Authenticator) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return ErrAuthFailed
	}
	return nil
}

// PlainServer returns a SASL PLAIN server that calls onSuccess once the
// client authenticates. The authorization identity must be empty or match
// the username.
func (a *Authenticator) PlainServer(onSuccess func(username string)) sasl.Server {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return ErrAuthFailed
		}
		if err := a.Verify(username, password); err != nil {
			return err
		}
		onSuccess(username)
		return nil
	})
}
