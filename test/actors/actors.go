package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"lifeline/alert"
)

// Reporter raises fresh alerts at a steady clip.
func Reporter(ctx context.Context, store *alert.Store, id int, stop <-chan struct{}) error {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n++
		_, err := store.Create(ctx, alert.CreateParams{
			ReporterID:    fmt.Sprintf("reporter-%d", id),
			ReporterName:  fmt.Sprintf("Reporter %d", id),
			ReporterPhone: fmt.Sprintf("+2711%07d", rand.Intn(10000000)),
			Latitude:      -35 + rand.Float64()*10,
			Longitude:     16 + rand.Float64()*16,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("reporter %d create: %w", id, err)
		}
		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
	}
}

// Responder races other responders for whatever is active. Wins and conflicts
// are tallied so the harness can cross-check the exactly-one-winner rule.
type Responder struct {
	Store *alert.Store
	ID    string

	mu        sync.Mutex
	wins      []string
	conflicts int
}

func (r *Responder) Run(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		active, err := r.Store.ListActive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("responder %s list: %w", r.ID, err)
		}
		if len(active) == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		target := active[rand.Intn(len(active))]
		_, err = r.Store.TransitionToResponded(ctx, target.ID, r.ID)
		switch {
		case err == nil:
			r.mu.Lock()
			r.wins = append(r.wins, target.ID)
			r.mu.Unlock()
		case errors.Is(err, alert.ErrAlreadyResponded):
			r.mu.Lock()
			r.conflicts++
			r.mu.Unlock()
		case errors.Is(err, alert.ErrNotFound), errors.Is(err, context.Canceled):
			// snapshot raced ahead of the store; fine
		default:
			return fmt.Errorf("responder %s respond: %w", r.ID, err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

func (r *Responder) Wins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.wins))
	copy(out, r.wins)
	return out
}

func (r *Responder) Conflicts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conflicts
}

// Watcher holds a live subscription and verifies every pushed snapshot:
// active-only contents in creation-descending order.
func Watcher(ctx context.Context, listener *alert.Listener, stop <-chan struct{}) error {
	sub, err := listener.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("watcher subscribe: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case snapshot, ok := <-sub.C:
			if !ok {
				return nil
			}
			for i, a := range snapshot {
				if a.Status != alert.StatusActive {
					return fmt.Errorf("watcher: snapshot contains %s alert %s", a.Status, a.ID)
				}
				if i > 0 && snapshot[i-1].CreatedAt.Before(a.CreatedAt) {
					return fmt.Errorf("watcher: snapshot out of order at %d (%s before %s)",
						i, snapshot[i-1].ID, a.ID)
				}
			}
		}
	}
}
