// Package notify renders claim and idle events and delivers them to
// Discord and Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/claimwatch/internal/models"
)

// Notifier delivers monitor events. Delivery is best-effort: callers log
// returned errors and carry on.
type Notifier interface {
	NotifyClaim(ctx context.Context, ev models.ClaimEvent) error
	NotifyIdle(ctx context.Context, ev models.IdleEvent) error
	NotifyError(ctx context.Context, cycleErr error) error
	NotifyRecovery(ctx context.Context, failures int) error
}

// Sender delivers a rendered message to one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NotifyError is returned when a channel rejects or fails a delivery.
type NotifyError struct {
	Channel string
	Status  int
	Body    string
	Err     error
}

func (e *NotifyError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("notify %s: status %d: %v", e.Channel, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
	default:
		return fmt.Sprintf("notify %s: status %d: %s", e.Channel, e.Status, e.Body)
	}
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Dispatcher renders each event once and fans it out to every sender.
// A Dispatcher without senders discards everything.
type Dispatcher struct {
	renderer Renderer
	senders  []Sender
	now      func() time.Time
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(renderer Renderer, senders ...Sender) *Dispatcher {
	return &Dispatcher{renderer: renderer, senders: senders, now: time.Now}
}

// Senders returns the names of the configured channels.
func (d *Dispatcher) Senders() []string {
	names := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		names = append(names, s.Name())
	}
	return names
}

func (d *Dispatcher) NotifyClaim(ctx context.Context, ev models.ClaimEvent) error {
	return d.dispatch(ctx, d.renderer.Claim(ev))
}

func (d *Dispatcher) NotifyIdle(ctx context.Context, ev models.IdleEvent) error {
	return d.dispatch(ctx, d.renderer.Idle(ev))
}

func (d *Dispatcher) NotifyError(ctx context.Context, cycleErr error) error {
	return d.dispatch(ctx, d.renderer.Error(cycleErr, d.now()))
}

func (d *Dispatcher) NotifyRecovery(ctx context.Context, failures int) error {
	return d.dispatch(ctx, d.renderer.Recovery(failures, d.now()))
}

// dispatch sends to every channel even when one fails.
func (d *Dispatcher) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range d.senders {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
