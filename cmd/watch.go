package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/credstore"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/monitor"
	"github.com/grovetools/tether/pkg/notify"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/grovetools/tether/pkg/realtime"
	"github.com/grovetools/tether/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewWatchCmd() *cobra.Command {
	var metricsAddr string
	var bell bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream proximity updates and alert on departures",
		Long: `Connect to the realtime channel of the logged in role and print every
proximity update. Departures are announced in the terminal and recorded in the
alert journal. The connection is re-established after a loss until the
reconnect budget is spent. Logging out from another terminal stops the watch.

Examples:
  tether watch
  tether watch --bell --metrics-addr :9090
  tether watch --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireServer(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			notifiers := notify.Multi{}
			if a.opts.JSONOutput {
				notifiers = append(notifiers, notify.LogNotifier{Logger: a.logger.WithField("component", "notify")})
			} else {
				notifiers = append(notifiers, notify.NewTerminalNotifier(out, bell))
			}
			journal, err := a.openJournal()
			if err != nil {
				a.logger.WithError(err).Warn("Alert journal unavailable, departures will not be recorded")
			} else if journal != nil {
				defer journal.Close()
				notifiers = append(notifiers, journal)
			}

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				telemetry.SetBuildInfo(version.Version, version.Commit)
				go func() {
					if err := telemetry.Serve(ctx, metricsAddr); err != nil {
						a.logger.WithError(err).Warn("Metrics endpoint stopped")
					}
				}()
				a.logger.WithField("addr", metricsAddr).Info("Serving metrics")
			}

			if loc := credstore.Location(a.store); loc != "" {
				watcher, err := credstore.NewWatcher(loc, 0, func() {
					if !a.sessions.CheckStoredSession().Success {
						a.logger.Info("Stored session removed by another process")
						a.sessions.Logout(context.WithoutCancel(ctx))
					}
				})
				if err != nil {
					a.logger.WithError(err).Debug("Credential watcher unavailable")
				} else {
					go watcher.Start(ctx)
				}
			}

			opts := realtime.OptionsFromConfig(a.cfg)
			opts.Logger = a.logger.WithField("component", "realtime")
			connector := realtime.NewManager(a.sessions, opts)
			defer connector.Close()

			mon := monitor.New(monitor.Config{
				Sessions:   a.sessions,
				Connector:  connector,
				Policy:     realtime.PolicyFromConfig(a.cfg.Realtime),
				Notifier:   notifiers,
				Thresholds: a.thresholds,
				Logger:     a.logger.WithField("component", "monitor"),
			})

			role := a.sessions.Role()
			initial := a.thresholds.Load()
			printer := newWatchPrinter(out, a.opts.JSONOutput)
			runErr := mon.Run(ctx, printer.Print)
			// Hosts keep thresholds the server reported while watching.
			if role == models.RoleHost && a.thresholds.Load() != initial {
				a.rememberThresholds()
			}
			if runErr != nil {
				return runErr
			}
			printer.Stopped()
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")
	cmd.Flags().BoolVar(&bell, "bell", false, "Ring the terminal bell on departures")
	return cmd
}

// WatchEvent is the JSON line written for each update with --json.
type WatchEvent struct {
	Time        time.Time              `json:"time"`
	Role        models.Role            `json:"role"`
	State       string                 `json:"state"`
	Snapshot    *proximity.Snapshot    `json:"snapshot,omitempty"`
	Transitions []proximity.Transition `json:"transitions,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempt     int                    `json:"attempt,omitempty"`
	RetryIn     string                 `json:"retry_in,omitempty"`
}

// watchPrinter renders monitor updates as styled lines or JSON lines.
type watchPrinter struct {
	out    io.Writer
	json   bool
	pretty *logging.PrettyLogger
	now    func() time.Time
}

func newWatchPrinter(out io.Writer, jsonOutput bool) *watchPrinter {
	return &watchPrinter{
		out:    out,
		json:   jsonOutput,
		pretty: logging.NewPrettyLogger().WithWriter(out),
		now:    time.Now,
	}
}

func (p *watchPrinter) Print(u monitor.Update) {
	if p.json {
		ev := WatchEvent{
			Time:        p.now(),
			Role:        u.Role,
			State:       u.State.String(),
			Snapshot:    u.Snapshot,
			Transitions: u.Transitions,
			Attempt:     u.Attempt,
		}
		if u.Err != nil {
			ev.Error = u.Err.Error()
		}
		if u.RetryIn > 0 {
			ev.RetryIn = u.RetryIn.String()
		}
		data, err := json.Marshal(ev)
		if err != nil {
			logrus.WithError(err).Debug("Failed to encode watch event")
			return
		}
		fmt.Fprintln(p.out, string(data))
		return
	}

	switch {
	case u.Snapshot != nil:
		p.snapshot(*u.Snapshot)
	case u.State == realtime.StateConnecting && u.Attempt > 0:
		p.pretty.Muted(fmt.Sprintf("Reconnecting as %s (attempt %d)", u.Role, u.Attempt))
	case u.State == realtime.StateConnecting:
		p.pretty.Muted(fmt.Sprintf("Connecting as %s", u.Role))
	case u.State == realtime.StateConnected && u.Err != nil:
		p.pretty.WarnPretty(u.Err.Error())
	case u.State == realtime.StateConnected:
		p.pretty.Success("Connected")
	case u.State == realtime.StateDisconnected:
		p.pretty.WarnPretty(fmt.Sprintf("Connection lost, retrying in %s (attempt %d)", u.RetryIn, u.Attempt))
	case u.State == realtime.StateFailed:
		p.pretty.ErrorPretty("Realtime channel failed", u.Err)
	}
}

func (p *watchPrinter) snapshot(s proximity.Snapshot) {
	p.pretty.Muted(p.now().Format("15:04:05"))
	if len(s.Members) == 0 {
		p.pretty.Muted("  no members reporting")
		return
	}
	for _, m := range s.Members {
		name := m.Name
		if name == proximity.SelfKey {
			name = "You"
		}
		p.pretty.Severity(int(m.Tier), m.Tier.String(), fmt.Sprintf("%s  %.0fm", name, m.Distance))
	}
}

// Stopped is printed when the watch ends without an error.
func (p *watchPrinter) Stopped() {
	if !p.json {
		p.pretty.Muted("Stopped")
	}
}
