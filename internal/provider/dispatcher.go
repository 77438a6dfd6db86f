package provider

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shineum/maildispatch/internal/email"
)

const defaultConcurrency = 4

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Default is used when Send is called with an empty provider name.
	Default string
	Policy  Policy
	// Concurrency bounds in-flight sends in SendBatch.
	Concurrency int
	Logger      *slog.Logger
}

// Dispatcher selects a provider by name, applies the capability policy and
// sends. It never retries.
type Dispatcher struct {
	registry    *Registry
	defaultName string
	policy      Policy
	concurrency int
	logger      *slog.Logger
}

// Result is the outcome of one message in a batch.
type Result struct {
	Index    int
	Response *Response
	Err      error
}

func NewDispatcher(reg *Registry, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		defaultName: cfg.Default,
		policy:      cfg.Policy,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if d.concurrency <= 0 {
		d.concurrency = defaultConcurrency
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Default returns the name used when none is given.
func (d *Dispatcher) Default() string { return d.defaultName }

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Send delivers e through the named provider, or the default when name is
// empty.
func (d *Dispatcher) Send(ctx context.Context, name string, e *email.Email) (*Response, error) {
	if e == nil {
		return nil, ErrNilEmail
	}
	if name == "" {
		name = d.defaultName
	}

	p, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}

	prepared, err := Prepare(p, e, d.policy)
	if err != nil {
		d.logger.Warn("email rejected by capability policy",
			"provider", name,
			"subject", e.Subject(),
			"error", err,
		)
		return nil, err
	}
	if prepared != e {
		d.logger.Debug("unsupported capabilities stripped",
			"provider", name,
			"attachments_dropped", e.HasAttachments() && !prepared.HasAttachments(),
			"tracking_dropped", e.HasTracking() && !prepared.HasTracking(),
		)
	}

	start := time.Now()
	resp, err := p.Send(ctx, prepared)
	if err != nil {
		d.logger.Error("email delivery failed",
			"provider", name,
			"subject", e.Subject(),
			"recipients", len(e.Recipients()),
			"duration", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	d.logger.Info("email delivered",
		"provider", name,
		"message_id", resp.MessageID,
		"recipients", len(e.Recipients()),
		"duration", time.Since(start),
	)
	return resp, nil
}

// SendBatch sends every email independently. A failed or cancelled send
// does not stop the others; each outcome is reported in its Result, in
// input order.
func (d *Dispatcher) SendBatch(ctx context.Context, name string, emails []*email.Email) []Result {
	results := make([]Result, len(emails))

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i, e := range emails {
		g.Go(func() error {
			results[i] = Result{Index: i}
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Response, results[i].Err = d.Send(ctx, name, e)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
