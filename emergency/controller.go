package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifeline/alert"
	"lifeline/contact"
	"lifeline/dispatch"
	"lifeline/geo"
)

// State is the explicit reporting-side lifecycle. Illegal transitions are
// rejected, not silently absorbed into UI flags.
type State string

const (
	StateIdle             State = "idle"
	StateCountdown        State = "countdown"
	StateDispatching      State = "dispatching"
	StateSent             State = "sent"
	StateResponseReceived State = "response_received"
)

// ErrInvalidTransition is returned when an operation is not valid in the
// current state.
var ErrInvalidTransition = errors.New("emergency: invalid transition")

const (
	defaultCountdownTicks = 5
	defaultTickInterval   = time.Second
)

// Event is pushed to the UI layer on every observable change. Err carries
// the actionable failure when the machine falls back to idle; Report is the
// dispatch summary once fan-out settled.
type Event struct {
	State     State
	Countdown int
	Err       error
	Alert     *alert.Alert
	Report    *dispatch.Report
}

// Profile is the reporter snapshot embedded into the alert at trigger time.
// It is deliberately not refreshed from later profile edits.
type Profile struct {
	ID                 string
	Name               string
	Phone              string
	IdentifyingFeature string
	PhotoURL           string
}

// LocationResolver yields the current fix, failing closed on permission or
// availability problems.
type LocationResolver interface {
	Resolve(ctx context.Context) (geo.Fix, error)
}

// ContactDirectory lists the reporter's registered emergency contacts.
type ContactDirectory interface {
	ListByOwner(ctx context.Context, ownerID string) ([]contact.EmergencyContact, error)
}

// MessageDispatcher fans the distress message out to contacts and the
// authority line.
type MessageDispatcher interface {
	FanOut(ctx context.Context, contacts []contact.EmergencyContact, message string) dispatch.Report
}

// AlertWriter persists the alert record.
type AlertWriter interface {
	Create(ctx context.Context, params alert.CreateParams) (alert.Alert, error)
}

// AlertWatcher streams status changes for one alert. The returned stop
// function releases the underlying subscription.
type AlertWatcher interface {
	WatchAlert(ctx context.Context, alertID string) (<-chan alert.Alert, func(), error)
}

// Controller drives the countdown -> dispatch -> persist cycle for one
// reporter session. All methods are safe for concurrent use; the countdown
// itself is a cancellable cooperative timer.
type Controller struct {
	resolver   LocationResolver
	contacts   ContactDirectory
	dispatcher MessageDispatcher
	store      AlertWriter
	watcher    AlertWatcher
	profile    Profile
	log        *zap.Logger

	countdownTicks int
	tickInterval   time.Duration

	mu           sync.Mutex
	state        State
	cancelTimer  chan struct{}
	stopWatch    func()
	currentAlert *alert.Alert

	events chan Event
}

func NewController(resolver LocationResolver, contacts ContactDirectory, dispatcher MessageDispatcher, store AlertWriter, watcher AlertWatcher, profile Profile, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		resolver:       resolver,
		contacts:       contacts,
		dispatcher:     dispatcher,
		store:          store,
		watcher:        watcher,
		profile:        profile,
		log:            log,
		countdownTicks: defaultCountdownTicks,
		tickInterval:   defaultTickInterval,
		state:          StateIdle,
		events:         make(chan Event, 16),
	}
}

// WithCountdown overrides the countdown length and tick interval.
func (c *Controller) WithCountdown(ticks int, interval time.Duration) *Controller {
	if ticks > 0 {
		c.countdownTicks = ticks
	}
	if interval > 0 {
		c.tickInterval = interval
	}
	return c
}

// Events delivers state changes to the UI layer. Undrained events beyond the
// buffer are dropped rather than blocking the machine.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alert returns the persisted alert for the current cycle, if any.
func (c *Controller) Alert() *alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentAlert
}

// Trigger starts the countdown. Valid only from idle.
func (c *Controller) Trigger(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("%w: trigger from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateCountdown
	c.currentAlert = nil
	cancel := make(chan struct{})
	c.cancelTimer = cancel
	c.mu.Unlock()

	c.emit(Event{State: StateCountdown, Countdown: c.countdownTicks})
	go c.runCountdown(ctx, cancel)
	return nil
}

// Cancel aborts the countdown with no side effects: nothing is sent, nothing
// is persisted. This is the sole cancellation point; once dispatching begins
// there is no way back.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.state != StateCountdown {
		c.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateIdle
	close(c.cancelTimer)
	c.cancelTimer = nil
	c.mu.Unlock()

	c.emit(Event{State: StateIdle})
	return nil
}

// Reset returns the machine to idle after a completed cycle so a new trigger
// can start.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state != StateSent && c.state != StateResponseReceived {
		c.mu.Unlock()
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateIdle
	c.currentAlert = nil
	stop := c.stopWatch
	c.stopWatch = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.emit(Event{State: StateIdle})
	return nil
}

func (c *Controller) runCountdown(ctx context.Context, cancel <-chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	remaining := c.countdownTicks
	for {
		select {
		case <-cancel:
			return
		case <-ctx.Done():
			c.abortCountdown()
			return
		case <-ticker.C:
			remaining--
			if remaining > 0 {
				c.emit(Event{State: StateCountdown, Countdown: remaining})
				continue
			}
			if !c.advanceToDispatching(cancel) {
				return
			}
			c.dispatch(ctx)
			return
		}
	}
}

func (c *Controller) abortCountdown() {
	c.mu.Lock()
	if c.state == StateCountdown {
		c.state = StateIdle
		c.cancelTimer = nil
	}
	c.mu.Unlock()
	c.emit(Event{State: StateIdle})
}

func (c *Controller) advanceToDispatching(cancel <-chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-cancel:
		// Cancel raced the final tick; the cancel wins.
		return false
	default:
	}
	if c.state != StateCountdown {
		return false
	}
	c.state = StateDispatching
	c.cancelTimer = nil
	c.emit(Event{State: StateDispatching})
	return true
}

// dispatch resolves the location, fans the message out, persists the alert,
// and arms the responded watch. Location failures are fail-closed: no
// messages, no record.
func (c *Controller) dispatch(ctx context.Context) {
	fix, err := c.resolver.Resolve(ctx)
	if err != nil {
		c.failToIdle(fmt.Errorf("emergency: resolve location: %w", err), nil)
		return
	}

	recipients, err := c.contacts.ListByOwner(ctx, c.profile.ID)
	if err != nil {
		c.failToIdle(fmt.Errorf("emergency: load contacts: %w", err), nil)
		return
	}

	message := BuildMessage(c.profile.Name, fix)
	report := c.dispatcher.FanOut(ctx, recipients, message)

	rec, err := c.store.Create(ctx, alert.CreateParams{
		ReporterID:         c.profile.ID,
		ReporterName:       c.profile.Name,
		ReporterPhone:      c.profile.Phone,
		IdentifyingFeature: c.profile.IdentifyingFeature,
		PhotoURL:           c.profile.PhotoURL,
		Latitude:           fix.Position.Point.Latitude,
		Longitude:          fix.Position.Point.Longitude,
	})
	if err != nil {
		// Notifications already went out and are not revoked; the write is
		// not retried automatically.
		c.failToIdle(fmt.Errorf("emergency: persist alert: %w", err), &report)
		return
	}

	c.mu.Lock()
	c.state = StateSent
	c.currentAlert = &rec
	c.mu.Unlock()
	c.emit(Event{State: StateSent, Alert: &rec, Report: &report})

	c.armWatch(ctx, rec.ID)
}

func (c *Controller) armWatch(ctx context.Context, alertID string) {
	updates, stop, err := c.watcher.WatchAlert(ctx, alertID)
	if err != nil {
		c.log.Warn("alert status watch unavailable", zap.String("alert_id", alertID), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.stopWatch = stop
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case state, ok := <-updates:
				if !ok {
					return
				}
				if state.Status != alert.StatusResponded {
					continue
				}
				c.mu.Lock()
				if c.state != StateSent {
					c.mu.Unlock()
					stop()
					return
				}
				c.state = StateResponseReceived
				c.currentAlert = &state
				c.mu.Unlock()
				c.emit(Event{State: StateResponseReceived, Alert: &state})
				stop()
				return
			}
		}
	}()
}

func (c *Controller) failToIdle(err error, report *dispatch.Report) {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.log.Error("dispatch failed", zap.Error(err))
	c.emit(Event{State: StateIdle, Err: err, Report: report})
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", zap.String("state", string(ev.State)))
	}
}

// ListenerWatcher adapts alert.Listener to the AlertWatcher contract.
type ListenerWatcher struct {
	Listener *alert.Listener
}

func (w ListenerWatcher) WatchAlert(ctx context.Context, alertID string) (<-chan alert.Alert, func(), error) {
	watch, err := w.Listener.WatchAlert(ctx, alertID)
	if err != nil {
		return nil, nil, err
	}
	return watch.C, watch.Close, nil
}
