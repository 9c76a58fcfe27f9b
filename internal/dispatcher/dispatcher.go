package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmehdipour/notify-gateway/internal/metrics"
	"github.com/jmehdipour/notify-gateway/internal/model"
)

var (
	// ErrChannelUnavailable means the channel itself cannot send right now
	// (no configured key, no enabled provider, every breaker open). It is
	// not the message's fault and must not consume its retry budget.
	ErrChannelUnavailable = errors.New("email channel unavailable")

	ErrNoHealthy = fmt.Errorf("%w: no healthy providers", ErrChannelUnavailable)
	ErrNoAcquire = fmt.Errorf("%w: provider not acquired", ErrChannelUnavailable)
)

// Dispatcher routes emails round-robin across healthy providers and fails
// over to the next one inside a single submission.
type Dispatcher struct {
	providers         []Provider
	from              string
	roundRobinCounter atomic.Uint64
}

func NewDispatcher(provs []Provider, from string) *Dispatcher {
	return &Dispatcher{providers: provs, from: from}
}

func (d *Dispatcher) healthy() []Provider {
	out := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			out = append(out, p)
		}
	}
	return out
}

// Send submits the email once. Exactly one provider accepts it on success.
func (d *Dispatcher) Send(ctx context.Context, email model.Email) error {
	if email.From == "" {
		email.From = d.from
	}

	healthy := d.healthy()
	if len(healthy) == 0 {
		return ErrNoHealthy
	}

	start := int((d.roundRobinCounter.Add(1) - 1) % uint64(len(healthy)))

	var last error
	for i := range healthy {
		p := healthy[(start+i)%len(healthy)]
		if !p.Acquire() {
			if last == nil {
				last = ErrNoAcquire
			}
			continue
		}

		err := p.Send(ctx, email)
		if err == nil {
			metrics.ProviderSendsTotal.WithLabelValues(p.Name(), "ok").Inc()
			return nil
		}
		metrics.ProviderSendsTotal.WithLabelValues(p.Name(), "error").Inc()
		last = err

		var perr *ProviderError
		if errors.As(err, &perr) && !perr.Retryable() {
			// another provider would reject the same message
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}

	return last
}
