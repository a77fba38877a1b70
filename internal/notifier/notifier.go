package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

// ErrNoChannel is returned when a user has no contact detail any configured
// channel can deliver to.
var ErrNoChannel = errors.New("no notification channel for user")

// Channel delivers an alert over one medium.
type Channel interface {
	Name() string
	// Accepts reports whether the user has the contact detail this channel needs.
	Accepts(user models.User) bool
	Deliver(ctx context.Context, user models.User, alert models.Alert) error
}

// Dispatcher fans an alert out to every channel that accepts the user.
type Dispatcher struct {
	channels []Channel
}

func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// New wires the channels enabled by cfg: Mailgun email when credentials are
// set, and Discord for users with a personal webhook.
func New(cfg *config.Config) *Dispatcher {
	var channels []Channel
	if cfg.MailgunEnabled() {
		channels = append(channels, NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender, cfg.MailgunAPIBase, cfg.NotifyTimeout))
	}
	channels = append(channels, NewDiscord(cfg.NotifyTimeout, cfg.DiscordRatePerSecond))
	return NewDispatcher(channels...)
}

// Send delivers the alert on every accepting channel. One channel failing
// does not stop the others; all failures are joined into the returned error.
func (d *Dispatcher) Send(ctx context.Context, user models.User, alert models.Alert) error {
	var errs []error
	attempted := 0
	for _, ch := range d.channels {
		if !ch.Accepts(user) {
			continue
		}
		attempted++
		if err := ch.Deliver(ctx, user, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		slog.Info("Alert delivered", "channel", ch.Name(), "user_id", user.UserID, "product_id", alert.ProductID)
	}
	if attempted == 0 {
		return fmt.Errorf("%w: %s", ErrNoChannel, user.UserID)
	}
	return errors.Join(errs...)
}
