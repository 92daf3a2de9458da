package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/pkg/models"
	"github.com/sirupsen/logrus"
)

// Listener receives the events of one Handle. Nil fields are skipped.
// Callbacks of one handle never run concurrently.
type Listener struct {
	// OnSnapshot receives the raw data of each snapshot event.
	OnSnapshot func(payload json.RawMessage)
	OnState    func(State)
	OnError    func(error)
}

// Handle is one realtime channel for a role.
//
// Teardown must not be called from inside one of the handle's own callbacks,
// and callbacks must not call back into the Manager. Listeners that need to
// stop the channel signal their owner, selecting on Done so they never block a
// torn down handle.
type Handle struct {
	role        models.Role
	attempts    int
	dataEvent   string
	dataTimeout time.Duration
	onHealthy   func()
	logger      *logrus.Entry

	mu        sync.Mutex
	conn      Conn
	state     State
	err       error
	listeners map[uint64]Listener
	nextID    uint64
	dataTimer *time.Timer
	gotData   bool

	// dispatchMu is held while callbacks run.
	dispatchMu sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

func newHandle(role models.Role, attempts int, opts Options, logger *logrus.Entry) *Handle {
	return &Handle{
		role:        role,
		attempts:    attempts,
		dataEvent:   opts.DataEvent,
		dataTimeout: opts.DataTimeout,
		logger:      logger,
		state:       StateIdle,
		listeners:   make(map[uint64]Listener),
		done:        make(chan struct{}),
	}
}

// Role returns the role this channel serves.
func (h *Handle) Role() models.Role {
	return h.role
}

// ReconnectAttempts is the number of consecutive abnormal endings before this
// handle was created.
func (h *Handle) ReconnectAttempts() int {
	return h.attempts
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error that ended the channel, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the handle is torn down.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Subscribe adds l and returns a function that removes it.
func (h *Handle) Subscribe(l Listener) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners == nil {
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// Teardown removes all listeners, stops timers and closes the transport. It
// returns once any callback already running has finished; no callback of this
// handle runs afterwards. Safe to call more than once.
func (h *Handle) Teardown() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		h.listeners = nil
		if h.dataTimer != nil {
			h.dataTimer.Stop()
		}
		conn := h.conn
		if h.state != StateFailed {
			h.state = StateClosed
		}
		h.mu.Unlock()

		telemetry.RealtimeState.WithLabelValues(h.role.String()).Set(float64(StateClosed))
		if conn != nil {
			_ = conn.Close()
		}
		h.logger.Debug("Realtime channel torn down")
	})

	// Wait out a callback that is already running.
	h.dispatchMu.Lock()
	h.dispatchMu.Unlock()
}

func (h *Handle) torndown() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// dispatch runs fn for every listener, serialised with all other callbacks.
func (h *Handle) dispatch(fn func(Listener)) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.dispatchLocked(fn)
}

// dispatchLocked is dispatch for callers already holding dispatchMu.
func (h *Handle) dispatchLocked(fn func(Listener)) {
	if h.torndown() {
		return
	}

	h.mu.Lock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.Unlock()

	for _, l := range listeners {
		fn(l)
	}
}

func (h *Handle) setState(s State, err error) bool {
	h.mu.Lock()
	if h.state == s || h.state == StateClosed {
		h.mu.Unlock()
		return false
	}
	h.state = s
	if err != nil {
		h.err = err
	}
	h.mu.Unlock()

	telemetry.RealtimeState.WithLabelValues(h.role.String()).Set(float64(s))
	h.logger.WithField("state", s.String()).Debug("Realtime state changed")
	return true
}

func (h *Handle) emitState(s State) {
	h.dispatch(func(l Listener) {
		if l.OnState != nil {
			l.OnState(s)
		}
	})
}

func (h *Handle) emitError(err error) {
	h.dispatch(func(l Listener) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// start attaches an established transport and begins reading.
func (h *Handle) start(conn Conn) {
	h.mu.Lock()
	h.conn = conn
	if h.dataTimeout > 0 {
		h.dataTimer = time.AfterFunc(h.dataTimeout, h.onDataTimeout)
	}
	h.mu.Unlock()

	if h.setState(StateConnected, nil) {
		h.emitState(StateConnected)
	}
	go h.readLoop(conn)
}

// onDataTimeout checks for data while holding dispatchMu.
func (h *Handle) onDataTimeout() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	fire := !h.gotData && h.state == StateConnected
	h.mu.Unlock()
	if !fire {
		return
	}
	h.logger.WithField("timeout", h.dataTimeout).Warn("No location data received")
	err := errors.DataTimeout(h.role.String(), h.dataTimeout)
	h.dispatchLocked(func(l Listener) {
		if l.OnError != nil {
			l.OnError(err)
		}
	})
}

// markData records the first snapshot and stops the data timer.
func (h *Handle) markData() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gotData {
		return false
	}
	h.gotData = true
	if h.dataTimer != nil {
		h.dataTimer.Stop()
	}
	return true
}

func (h *Handle) readLoop(conn Conn) {
	role := h.role.String()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if h.torndown() {
				return
			}
			h.mu.Lock()
			if h.dataTimer != nil {
				h.dataTimer.Stop()
			}
			h.mu.Unlock()

			lost := errors.Disconnected(role, err)
			if h.setState(StateDisconnected, lost) {
				h.logger.WithError(err).Warn("Realtime connection lost")
				h.emitState(StateDisconnected)
				h.emitError(lost)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.WithError(err).Debug("Ignoring malformed realtime frame")
			continue
		}

		switch env.Event {
		case h.dataEvent:
			if h.markData() && h.onHealthy != nil {
				h.onHealthy()
			}
			telemetry.SnapshotsTotal.WithLabelValues(role).Inc()
			payload := env.Data
			h.dispatch(func(l Listener) {
				if l.OnSnapshot != nil {
					l.OnSnapshot(payload)
				}
			})
		case "error":
			h.emitError(errors.New(errors.ErrCodeServerRejected, "realtime server error: "+serverText(env.Data)).
				WithDetail("role", role))
		default:
			h.logger.WithField("event", env.Event).Debug("Ignoring realtime event")
		}
	}
}

// serverText renders an error event's data, which may be a string or an object.
func serverText(data json.RawMessage) string {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(data)
}
