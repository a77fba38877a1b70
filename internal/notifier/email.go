package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

// MailgunClient sends alert emails through the Mailgun API.
type MailgunClient struct {
	mg      *mailgun.MailgunImpl
	sender  string
	timeout time.Duration
}

// NewMailgun builds an email channel. An empty sender defaults to
// alerts@<domain>; an empty apiBase keeps Mailgun's US endpoint.
func NewMailgun(domain, apiKey, sender, apiBase string, timeout time.Duration) *MailgunClient {
	mg := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	mg.SetClient(&http.Client{Timeout: timeout})
	if sender == "" {
		sender = "PriceDrop <alerts@" + domain + ">"
	}
	return &MailgunClient{mg: mg, sender: sender, timeout: timeout}
}

func (c *MailgunClient) Name() string { return "email" }

func (c *MailgunClient) Accepts(user models.User) bool { return user.Email != "" }

func (c *MailgunClient) Deliver(ctx context.Context, user models.User, alert models.Alert) error {
	html, err := alertHTML(user, alert)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, alertSubject(alert), alertText(user, alert), html, user.Email)
	return err
}

// Send sends one message and returns the Mailgun message ID.
func (c *MailgunClient) Send(ctx context.Context, subject, text, html, recipient string) (string, error) {
	message := c.mg.NewMessage(c.sender, subject, text, recipient)
	// SetHtml adds the HTML part alongside the plain text one.
	message.SetHtml(html)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	_, id, err := c.mg.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send to %s: %w", recipient, err)
	}
	return id, nil
}
