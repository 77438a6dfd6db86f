package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/maildispatch/internal/composer"
	"github.com/shineum/maildispatch/internal/config"
	"github.com/shineum/maildispatch/internal/provider"
	"github.com/shineum/maildispatch/internal/provider/graph"
	"github.com/shineum/maildispatch/internal/provider/postmark"
	"github.com/shineum/maildispatch/internal/provider/resend"
	"github.com/shineum/maildispatch/internal/provider/sendgrid"
	"github.com/shineum/maildispatch/internal/provider/ses"
	smtpprovider "github.com/shineum/maildispatch/internal/provider/smtp"
	"github.com/shineum/maildispatch/internal/provider/stdout"
	smtptls "github.com/shineum/maildispatch/internal/tls"
)

// autoDetectOrder is the order in which configured backends are considered
// when no provider is named explicitly. stdout always matches.
var autoDetectOrder = []string{
	graph.Name,
	ses.Name,
	sendgrid.Name,
	resend.Name,
	postmark.Name,
	smtpprovider.Name,
	stdout.Name,
}

// buildRegistry registers stdout plus every backend that has enough
// configuration to send.
func buildRegistry(ctx context.Context, cfg *config.Config, comp *composer.Composer) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	register := func(p provider.Provider) error {
		if err := reg.Register(p); err != nil {
			return err
		}
		slog.Info("provider registered", "provider", p.Name())
		return nil
	}

	if err := register(stdout.New()); err != nil {
		return nil, err
	}

	if cfg.GraphConfigured() {
		p := graph.New(graph.GraphProviderConfig{
			TenantID:        cfg.Graph.TenantID,
			ClientID:        cfg.Graph.ClientID,
			ClientSecret:    cfg.Graph.ClientSecret,
			Sender:          cfg.Graph.Sender,
			SaveToSentItems: cfg.Graph.SaveToSentItems,
		})
		if err := register(p); err != nil {
			return nil, err
		}
	}

	if cfg.SESConfigured() {
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			Sender:           cfg.SES.Sender,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		}, comp)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		if err := register(p); err != nil {
			return nil, err
		}
	}

	if cfg.SendGridConfigured() {
		if err := register(sendgrid.New(sendgrid.Config{APIKey: cfg.SendGrid.APIKey})); err != nil {
			return nil, err
		}
	}

	if cfg.ResendConfigured() {
		p := resend.New(resend.Config{APIKey: cfg.Resend.APIKey, Sender: cfg.Resend.Sender})
		if err := register(p); err != nil {
			return nil, err
		}
	}

	if cfg.PostmarkConfigured() {
		p := postmark.New(postmark.Config{
			ServerToken:   cfg.Postmark.ServerToken,
			Sender:        cfg.Postmark.Sender,
			MessageStream: cfg.Postmark.MessageStream,
		})
		if err := register(p); err != nil {
			return nil, err
		}
	}

	if cfg.UpstreamConfigured() {
		p, err := newUpstream(cfg.Upstream, comp)
		if err != nil {
			return nil, err
		}
		if err := register(p); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func newUpstream(u config.UpstreamConfig, comp *composer.Composer) (*smtpprovider.Provider, error) {
	mode, err := smtpprovider.ParseTLSMode(u.TLSMode)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := smtptls.ClientConfig(smtptls.ClientOptions{
		ServerName:         u.Host,
		CAFile:             u.CAFile,
		InsecureSkipVerify: u.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream TLS config: %w", err)
	}
	return smtpprovider.New(smtpprovider.Config{
		Host:      u.Host,
		Port:      u.Port,
		Username:  u.Username,
		Password:  u.Password,
		TLS:       mode,
		LocalName: u.LocalName,
		TLSConfig: tlsConfig,
	}, comp), nil
}

// defaultProvider resolves the provider used when a request names none.
// An explicit name must be registered; "graph" is accepted for the Graph
// backend.
func defaultProvider(name string, reg *provider.Registry) (string, error) {
	if name == "graph" {
		name = graph.Name
	}
	if name != "" {
		if _, err := reg.Get(name); err != nil {
			return "", fmt.Errorf("provider %q is selected but not configured: %w", name, err)
		}
		return name, nil
	}
	for _, candidate := range autoDetectOrder {
		if _, err := reg.Get(candidate); err == nil {
			return candidate, nil
		}
	}
	return stdout.Name, nil
}
