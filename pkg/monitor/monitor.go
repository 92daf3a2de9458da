// Package monitor drives a realtime channel for the logged in role: it
// reconnects within a bounded policy, runs every snapshot through a
// proximity reducer and hands departures to a notifier.
package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/notify"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/grovetools/tether/pkg/realtime"
	"github.com/grovetools/tether/pkg/session"
	"github.com/sirupsen/logrus"
)

// Sessions is the part of the session manager the monitor uses.
type Sessions interface {
	Role() models.Role
	OnLogout(fn func()) (unsubscribe func())
	Refresh(ctx context.Context) (session.RefreshResult, error)
	Logout(ctx context.Context)
}

// Connector opens realtime channels. *realtime.Manager satisfies it.
type Connector interface {
	Connect(ctx context.Context, role models.Role, listeners ...realtime.Listener) (*realtime.Handle, error)
	Disconnect(role models.Role)
}

// Update is emitted for every observable change while monitoring.
type Update struct {
	Role        models.Role
	State       realtime.State
	Snapshot    *proximity.Snapshot
	Transitions []proximity.Transition
	// Err is a non-fatal condition such as a data timeout or a failed
	// connect that will be retried.
	Err error
	// Attempt is the number of consecutive failures so far.
	Attempt int
	// RetryIn is the wait before the next connect, when one is scheduled.
	RetryIn time.Duration
}

// Config wires a Monitor.
type Config struct {
	Sessions  Sessions
	Connector Connector
	Policy    realtime.Policy
	Notifier  notify.Notifier
	// Thresholds, when set, classifies payloads that carry no thresholds and
	// follows the thresholds the server reports to a host view.
	Thresholds *proximity.ThresholdStore
	Logger     *logrus.Entry
}

// Monitor watches one role's channel until stopped.
type Monitor struct {
	cfg    Config
	logger *logrus.Entry
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("monitor")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.LogNotifier{Logger: logger}
	}
	return &Monitor{cfg: cfg, logger: logger}
}

type eventKind int

const (
	eventSnapshot eventKind = iota
	eventState
	eventError
)

type event struct {
	kind    eventKind
	payload json.RawMessage
	state   realtime.State
	err     error
}

// Run monitors until ctx is cancelled (returns nil), the session logs out
// (NOT_AUTHENTICATED), or the reconnect budget is spent (RECONNECT_EXHAUSTED).
// emit is called from Run's goroutine only.
func (m *Monitor) Run(ctx context.Context, emit func(Update)) error {
	if emit == nil {
		emit = func(Update) {}
	}
	role := m.cfg.Sessions.Role()
	if !role.Valid() {
		return errors.NotAuthenticated("watch")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loggedOut := make(chan struct{})
	unsubscribe := m.cfg.Sessions.OnLogout(func() {
		select {
		case <-loggedOut:
		default:
			close(loggedOut)
		}
		cancel()
	})
	defer unsubscribe()
	defer m.cfg.Connector.Disconnect(role)

	log := m.logger.WithField("role", role.String())
	stopped := func() error {
		select {
		case <-loggedOut:
			log.Info("Session ended, stopping monitor")
			return errors.NotAuthenticated("watch")
		default:
			return nil
		}
	}

	failures := 0
	refreshed := false
	for {
		if ctx.Err() != nil {
			return stopped()
		}

		events := make(chan event, 64)
		connDone := make(chan struct{})
		listener := m.listener(ctx, events, connDone)

		emit(Update{Role: role, State: realtime.StateConnecting, Attempt: failures})
		_, err := m.cfg.Connector.Connect(ctx, role, listener)

		var lastErr error
		if err != nil {
			close(connDone)
			if ctx.Err() != nil {
				return stopped()
			}
			if errors.Is(err, errors.ErrCodeNotAuthenticated) {
				emit(Update{Role: role, State: realtime.StateFailed, Err: err})
				return err
			}
			if errors.Is(err, errors.ErrCodeUnauthorized) {
				if refreshed {
					log.Warn("Realtime handshake still unauthorized after refresh, logging out")
					m.cfg.Sessions.Logout(context.WithoutCancel(ctx))
					return errors.Wrap(err, errors.ErrCodeNotAuthenticated, "session is no longer valid")
				}
				refreshed = true
				if m.refresh(ctx, log) {
					continue
				}
				m.cfg.Sessions.Logout(context.WithoutCancel(ctx))
				return errors.Wrap(err, errors.ErrCodeNotAuthenticated, "session is no longer valid")
			}
			lastErr = err
		} else {
			emit(Update{Role: role, State: realtime.StateConnected, Attempt: failures})
			lastErr = m.consume(ctx, role, events, emit, func() {
				failures = 0
				refreshed = false
			})
			close(connDone)
			if ctx.Err() != nil {
				return stopped()
			}
		}

		failures++
		delay, ok := m.cfg.Policy.Next(failures)
		if !ok {
			exhausted := errors.ReconnectExhausted(role.String(), failures-1, lastErr)
			emit(Update{Role: role, State: realtime.StateFailed, Err: exhausted, Attempt: failures})
			log.WithError(lastErr).Error("Giving up on realtime channel")
			return exhausted
		}

		log.WithFields(logrus.Fields{"attempt": failures, "delay": delay}).WithError(lastErr).Warn("Realtime channel down, reconnecting")
		emit(Update{Role: role, State: realtime.StateDisconnected, Err: lastErr, Attempt: failures, RetryIn: delay})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stopped()
		case <-timer.C:
		}
	}
}

// listener forwards handle callbacks to the Run loop. Sends never block a
// connection the loop has moved past.
func (m *Monitor) listener(ctx context.Context, events chan<- event, connDone <-chan struct{}) realtime.Listener {
	send := func(ev event) {
		select {
		case events <- ev:
		case <-connDone:
		case <-ctx.Done():
		}
	}
	return realtime.Listener{
		OnSnapshot: func(p json.RawMessage) { send(event{kind: eventSnapshot, payload: p}) },
		OnState:    func(s realtime.State) { send(event{kind: eventState, state: s}) },
		OnError:    func(err error) { send(event{kind: eventError, err: err}) },
	}
}

// consume processes one connection's events until it is lost or ctx ends.
// Each connection gets a fresh reducer.
func (m *Monitor) consume(ctx context.Context, role models.Role, events <-chan event, emit func(Update), healthy func()) error {
	reducer := proximity.NewReducer(role, m.cfg.Thresholds)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.kind {
			case eventSnapshot:
				healthy()
				res := reducer.Apply(ev.payload)
				m.syncThresholds(role, res.Snapshot)
				m.deliver(ctx, role, res)
				snap := res.Snapshot
				emit(Update{Role: role, State: realtime.StateConnected, Snapshot: &snap, Transitions: res.Transitions})
			case eventState:
				// Disconnects are acted on when their error arrives.
			case eventError:
				if errors.Is(ev.err, errors.ErrCodeDisconnected) {
					return ev.err
				}
				m.logger.WithError(ev.err).Warn("Realtime channel reported a problem")
				emit(Update{Role: role, State: realtime.StateConnected, Err: ev.err})
			}
		}
	}
}

func (m *Monitor) refresh(ctx context.Context, log *logrus.Entry) bool {
	res, err := m.cfg.Sessions.Refresh(ctx)
	if err != nil || !res.Success {
		log.WithError(err).Warn("Token refresh for realtime channel failed")
		return false
	}
	log.Debug("Token refreshed, reconnecting")
	return true
}

// deliver notifies each departure. Failures are logged and never stop the
// stream.
func (m *Monitor) deliver(ctx context.Context, role models.Role, res proximity.Result) {
	for _, tr := range res.Transitions {
		telemetry.DeparturesTotal.WithLabelValues(role.String()).Inc()
		alert := notify.Departure(role, tr, tr.Identity)
		if err := m.cfg.Notifier.Notify(ctx, alert); err != nil {
			m.logger.WithError(err).WithField("identity", tr.Identity).Warn("Failed to deliver departure alert")
		}
	}
}

func (m *Monitor) syncThresholds(role models.Role, snap proximity.Snapshot) {
	if m.cfg.Thresholds == nil || role != models.RoleHost || !snap.Reported {
		return
	}
	if m.cfg.Thresholds.Load() == snap.Thresholds {
		return
	}
	if err := m.cfg.Thresholds.Set(snap.Thresholds); err != nil {
		m.logger.WithError(err).Debug("Ignoring invalid server thresholds")
	}
}
