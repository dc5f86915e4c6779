// Package notify posts escalation alerts to chat platforms. Delivery is
// best-effort: a failed notification is logged and never fails the run
// that produced the escalation.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Notifier delivers one alert message to an ops channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// FormatEscalation renders the chat alert for an escalation.
func FormatEscalation(esc *models.Escalation, siteCode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: [%s] %s escalation", strings.ToUpper(esc.Priority), esc.IssueType)
	if siteCode != "" {
		fmt.Fprintf(&b, " at %s", siteCode)
	}
	fmt.Fprintf(&b, "\n%s", esc.Description)
	return b.String()
}

// Fanout sends the same alert through every notifier, logging failures.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout creates a Fanout over the given notifiers. Nil entries are
// skipped so callers can pass conditionally-constructed notifiers directly.
func NewFanout(notifiers ...Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Enabled reports whether any notifier is configured.
func (f *Fanout) Enabled() bool {
	return len(f.notifiers) > 0
}

// Notify delivers to all notifiers. The first error is returned after all
// deliveries are attempted.
func (f *Fanout) Notify(ctx context.Context, text string) error {
	var first error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, text); err != nil {
			log.Printf("notify: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
