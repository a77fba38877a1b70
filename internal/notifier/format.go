package notifier

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

//go:embed templates/alert.html
var templateFS embed.FS

var alertTemplate = template.Must(template.ParseFS(templateFS, "templates/alert.html"))

func alertTitle(alert models.Alert) string {
	if t := strings.TrimSpace(alert.Title); t != "" {
		return t
	}
	return alert.URL
}

func alertSubject(alert models.Alert) string {
	return fmt.Sprintf("Price drop: %s is now %s", truncate(alertTitle(alert), 120), alert.Price)
}

func alertText(user models.User, alert models.Alert) string {
	var b strings.Builder
	if name := user.DisplayName(); name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", name)
	}
	fmt.Fprintf(&b, "%s is now %s, at or below your target of %s.\n\n", alertTitle(alert), alert.Price, alert.TargetPrice)
	fmt.Fprintf(&b, "Buy it here: %s\n", alert.URL)
	if !alert.CapturedAt.IsZero() {
		fmt.Fprintf(&b, "\nPrice checked at %s.\n", alert.CapturedAt.UTC().Format("02 Jan 2006 15:04 MST"))
	}
	return b.String()
}

type alertView struct {
	Name        string
	Title       string
	URL         string
	Price       string
	TargetPrice string
	CheckedAt   string
}

func alertHTML(user models.User, alert models.Alert) (string, error) {
	view := alertView{
		Name:        user.DisplayName(),
		Title:       alertTitle(alert),
		URL:         alert.URL,
		Price:       alert.Price,
		TargetPrice: alert.TargetPrice,
	}
	if !alert.CapturedAt.IsZero() {
		view.CheckedAt = alert.CapturedAt.UTC().Format("02 Jan 2006 15:04 MST")
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
