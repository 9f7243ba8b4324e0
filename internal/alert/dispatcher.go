package alert

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher fans out events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	sender  *Sender
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config, sender *Sender, logger zerolog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if sender == nil {
		sender = NewSender(logger)
	}
	return &Dispatcher{configs: configs, sender: sender, logger: logger}
}

// Dispatch sends the event to all webhooks whose Statuses list matches.
// Delivery runs in the background; call Wait before exiting.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, cfg := range d.configs {
		if !matches(cfg.Statuses, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := d.sender.Send(ctx, cfg, event); err != nil {
				d.logger.Warn().Err(err).Str("url", cfg.URL).Str("username", event.Username).Msg("alert delivery failed")
			}
		}(cfg)
	}
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// matches reports whether event.Status is in statuses. An empty list
// matches everything except VERIFIED.
func matches(statuses []string, event Event) bool {
	if len(statuses) == 0 {
		return event.Status != "VERIFIED"
	}
	for _, s := range statuses {
		if strings.EqualFold(s, event.Status) {
			return true
		}
	}
	return false
}
