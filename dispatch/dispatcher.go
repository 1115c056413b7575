package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lifeline/contact"
	"lifeline/metrics"
)

// Outcome classifies one recipient's final dispatch result.
type Outcome string

const (
	// OutcomeNotified means some channel accepted the handoff.
	OutcomeNotified Outcome = "notified"
	// OutcomeUnreachable means every configured channel was unavailable.
	OutcomeUnreachable Outcome = "unreachable"
)

// Attempt records the final (recipient, channel, outcome) tuple for one
// recipient. It exists only for the human-readable summary and is never
// persisted.
type Attempt struct {
	Recipient string
	Phone     string
	Channel   string
	Outcome   Outcome
}

// Report aggregates a fan-out. The counts are computed only after every
// recipient attempt has settled.
type Report struct {
	Eligible          int
	Notified          int
	AuthorityNotified bool
	Attempts          []Attempt
}

// Summary renders the user-facing notification count.
func (r Report) Summary() string {
	return fmt.Sprintf("%d of %d eligible contacts notified", r.Notified, r.Eligible)
}

const defaultAttemptTimeout = 10 * time.Second

// Dispatcher fans one distress message out across recipients. Channel
// fallback per recipient is strictly ordered: each recipient receives at
// most one message through at most one channel.
type Dispatcher struct {
	contactChannels   []Channel
	authorityChannels []Channel
	authorityNumber   string
	attemptTimeout    time.Duration
	log               *zap.Logger
}

func NewDispatcher(contactChannels, authorityChannels []Channel, authorityNumber string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		contactChannels:   contactChannels,
		authorityChannels: authorityChannels,
		authorityNumber:   authorityNumber,
		attemptTimeout:    defaultAttemptTimeout,
		log:               log,
	}
}

// WithAttemptTimeout bounds each per-channel attempt. Expiry is treated as
// channel unavailability so a hung probe cannot stall the fan-out.
func (d *Dispatcher) WithAttemptTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.attemptTimeout = timeout
	}
	return d
}

// FanOut delivers the message to every dispatchable contact concurrently and
// notifies the authority line. Contacts without a phone are skipped and
// logged. The report is assembled only after all attempts complete.
func (d *Dispatcher) FanOut(ctx context.Context, contacts []contact.EmergencyContact, message string) Report {
	eligible := make([]contact.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if !c.Dispatchable() {
			d.log.Info("skipping contact without phone", zap.String("contact", c.Name))
			continue
		}
		eligible = append(eligible, c)
	}

	attempts := make([]Attempt, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range eligible {
		i, c := i, c
		g.Go(func() error {
			channel, reached := d.send(gctx, c.Phone, message, d.contactChannels)
			outcome := OutcomeUnreachable
			if reached {
				outcome = OutcomeNotified
			}
			attempts[i] = Attempt{
				Recipient: c.Name,
				Phone:     c.Phone,
				Channel:   channel,
				Outcome:   outcome,
			}
			return nil
		})
	}
	// Workers never return errors; per-recipient failures are outcomes.
	_ = g.Wait()

	report := Report{
		Eligible: len(eligible),
		Attempts: attempts,
	}
	for _, a := range attempts {
		if a.Outcome == OutcomeNotified {
			report.Notified++
		}
	}

	report.AuthorityNotified = d.notifyAuthority(ctx, message)
	return report
}

// notifyAuthority is the fixed single-recipient case on the well-known
// emergency number. Unavailability is a warning for the user, not a dispatch
// failure.
func (d *Dispatcher) notifyAuthority(ctx context.Context, message string) bool {
	if d.authorityNumber == "" || len(d.authorityChannels) == 0 {
		d.log.Warn("no authority channel configured; user must contact authorities manually")
		return false
	}
	_, reached := d.send(ctx, d.authorityNumber, message, d.authorityChannels)
	if !reached {
		d.log.Warn("authority line unreachable; user must contact authorities manually",
			zap.String("number", d.authorityNumber))
	}
	return reached
}

// send walks the ranked channel list and stops at the first one that accepts
// the handoff. It returns the accepting channel's name, or the empty string
// when the recipient is unreachable.
func (d *Dispatcher) send(ctx context.Context, phone, message string, channels []Channel) (string, bool) {
	for _, ch := range channels {
		if err := d.attempt(ctx, ch, phone, message); err != nil {
			metrics.DispatchAttempts.WithLabelValues(ch.Name(), "unavailable").Inc()
			d.log.Info("channel unavailable, falling through",
				zap.String("channel", ch.Name()),
				zap.Error(err))
			continue
		}
		metrics.DispatchAttempts.WithLabelValues(ch.Name(), "handed_off").Inc()
		return ch.Name(), true
	}
	return "", false
}

// attempt bounds one probe-and-handoff with the dispatcher timeout. The
// attempt runs in its own goroutine so a channel that ignores cancellation
// still cannot block the ranked walk.
func (d *Dispatcher) attempt(ctx context.Context, ch Channel, phone, message string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Deliver(attemptCtx, phone, message)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("%w: attempt timed out", ErrChannelUnavailable)
	}
}
