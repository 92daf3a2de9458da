// Package notify delivers departure alerts. Delivery is fire-and-forget from
// the caller's point of view: failures are reported but never retried.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/sirupsen/logrus"
)

// DepartureTitle is the title of every departure alert.
const DepartureTitle = "Departure detected"

// Notifier delivers an alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, alert models.Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert models.Alert) error {
	return f(ctx, alert)
}

// Departure builds the alert for a transition into the departed tier. name is
// the member's display name and is ignored for the member view.
func Departure(role models.Role, tr proximity.Transition, name string) models.Alert {
	msg := "You have left the safe zone"
	if role == models.RoleHost {
		if name == "" {
			name = proximity.UnknownName
		}
		msg = name + " has left the safe zone"
	}
	return models.Alert{
		Role:      role,
		Identity:  tr.Identity,
		Title:     DepartureTitle,
		Message:   msg,
		FromTier:  int(tr.From),
		ToTier:    int(tr.To),
		Timestamp: time.Now(),
	}
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	Logger *logrus.Entry
}

func (n LogNotifier) Notify(ctx context.Context, alert models.Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = logging.NewLogger("notify")
	}
	logger.WithFields(logrus.Fields{
		"role":     alert.Role,
		"identity": alert.Identity,
		"from":     alert.FromTier,
		"to":       alert.ToTier,
	}).Warn(alert.Title + ": " + alert.Message)
	return nil
}

// TerminalNotifier prints alerts for a person watching the terminal.
type TerminalNotifier struct {
	pretty *logging.PrettyLogger
	bell   bool
	out    io.Writer
}

// NewTerminalNotifier prints to w (stdout when nil). bell rings the terminal
// bell with each alert.
func NewTerminalNotifier(w io.Writer, bell bool) *TerminalNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &TerminalNotifier{pretty: logging.NewPrettyLogger().WithWriter(w), bell: bell, out: w}
}

func (n *TerminalNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if n.bell {
		if _, err := io.WriteString(n.out, "\a"); err != nil {
			return err
		}
	}
	n.pretty.Severity(alert.ToTier, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier. All notifiers run even if some
// fail; the failures are combined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert models.Alert) error {
	var failed []string
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notification delivery failed: %s", strings.Join(failed, "; "))
	}
	return nil
}
