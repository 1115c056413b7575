package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Listener owns a dedicated LISTEN connection and fans incoming change
// notifications out to subscriptions. Consumers never poll: every committed
// insert or respond-transition produces a fresh push.
type Listener struct {
	pool  *pgxpool.Pool
	store *Store
	log   *zap.Logger

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	watches map[*Watch]struct{}
}

// Subscription delivers the full current active set on every change. Each
// delivery replaces the consumer's working set; intermediate snapshots may be
// coalesced for slow consumers but the latest state is always retained.
type Subscription struct {
	C <-chan []Alert

	listener *Listener
	ch       chan []Alert
	closed   bool
}

// Watch delivers successive states of a single alert, letting the reporter
// side observe the responded transition without holding the whole feed.
type Watch struct {
	C <-chan Alert

	listener *Listener
	alertID  string
	ch       chan Alert
	closed   bool
}

func NewListener(pool *pgxpool.Pool, store *Store, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{
		pool:    pool,
		store:   store,
		log:     log,
		subs:    make(map[*Subscription]struct{}),
		watches: make(map[*Watch]struct{}),
	}
}

// Run blocks listening for alert change notifications until ctx is
// cancelled. The connection is re-acquired on failure so a dropped session
// does not silently starve subscribers.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Warn("alert listener disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return err
	}

	// Anything committed before LISTEN took effect is covered here.
	if err := l.broadcast(ctx); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := l.dispatchChange(ctx, notification.Payload); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.log.Warn("alert change fanout failed", zap.Error(err), zap.String("alert_id", notification.Payload))
		}
	}
}

func (l *Listener) dispatchChange(ctx context.Context, alertID string) error {
	if err := l.broadcast(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	wantsAlert := false
	for w := range l.watches {
		if w.alertID == alertID {
			wantsAlert = true
		}
	}
	l.mu.Unlock()
	if !wantsAlert {
		return nil
	}

	rec, err := l.store.Get(ctx, alertID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for w := range l.watches {
		if w.alertID == alertID && !w.closed {
			w.push(rec)
		}
	}
	return nil
}

func (l *Listener) broadcast(ctx context.Context) error {
	l.mu.Lock()
	empty := len(l.subs) == 0
	l.mu.Unlock()
	if empty {
		return nil
	}

	snapshot, err := l.store.ListActive(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs {
		if !sub.closed {
			sub.push(snapshot)
		}
	}
	return nil
}

// Subscribe registers an active-set subscription and seeds it with the
// current snapshot. Callers must Close the subscription when done; a leaked
// subscription keeps receiving fanout work forever.
func (l *Listener) Subscribe(ctx context.Context) (*Subscription, error) {
	snapshot, err := l.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []Alert, 1)
	sub := &Subscription{C: ch, listener: l, ch: ch}
	ch <- snapshot

	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return sub, nil
}

// WatchAlert registers a single-alert watch seeded with the alert's current
// state.
func (l *Listener) WatchAlert(ctx context.Context, alertID string) (*Watch, error) {
	rec, err := l.store.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Alert, 1)
	w := &Watch{C: ch, listener: l, alertID: alertID, ch: ch}
	ch <- rec

	l.mu.Lock()
	l.watches[w] = struct{}{}
	l.mu.Unlock()
	return w, nil
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.listener.mu.Lock()
	defer s.listener.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.listener.subs, s)
	close(s.ch)
}

// push replaces any undelivered snapshot so consumers always see the latest
// state. Caller holds the listener mutex.
func (s *Subscription) push(snapshot []Alert) {
	select {
	case s.ch <- snapshot:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snapshot
	}
}

// Close unregisters the watch and closes its channel.
func (w *Watch) Close() {
	w.listener.mu.Lock()
	defer w.listener.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	delete(w.listener.watches, w)
	close(w.ch)
}

func (w *Watch) push(rec Alert) {
	select {
	case w.ch <- rec:
	default:
		select {
		case <-w.ch:
		default:
		}
		w.ch <- rec
	}
}
