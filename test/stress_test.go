package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lifeline/alert"
	"lifeline/test/actors"
	"lifeline/test/infra"
	"lifeline/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 60*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestAlertConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	store := alert.NewStore(pool)
	listener := alert.NewListener(pool, store, zap.NewNop())

	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go func() { _ = listener.Run(listenerCtx) }()

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	responders := make([]*actors.Responder, 0, *flConcurrency)
	for i := 0; i < *flConcurrency; i++ {
		i := i
		g.Go(func() error { return actors.Reporter(ctx2, store, i, stop) })

		r := &actors.Responder{Store: store, ID: fmt.Sprintf("authority-%d", i)}
		responders = append(responders, r)
		g.Go(func() error { return r.Run(ctx2, stop) })
	}
	g.Go(func() error { return actors.Watcher(ctx2, listener, stop) })

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
	stopListener()

	verifyWinners(t, context.Background(), pool, responders, seed)
}

// verifyWinners cross-checks the in-memory win tallies against the database:
// each alert was claimed by at most one responder, and the database credits
// exactly that responder.
func verifyWinners(t *testing.T, ctx context.Context, pool *pgxpool.Pool, responders []*actors.Responder, seed int64) {
	t.Helper()

	claimed := make(map[string]string)
	totalConflicts := 0
	for _, r := range responders {
		totalConflicts += r.Conflicts()
		for _, alertID := range r.Wins() {
			if prev, ok := claimed[alertID]; ok {
				t.Fatalf("alert %s won by both %s and %s (seed=%d)", alertID, prev, r.ID, seed)
			}
			claimed[alertID] = r.ID
		}
	}
	t.Logf("stress summary: %d alerts claimed, %d conflicts observed (seed=%d)", len(claimed), totalConflicts, seed)

	for alertID, responderID := range claimed {
		var status string
		var respondedBy *string
		err := pool.QueryRow(ctx,
			`SELECT status, responded_by FROM alerts WHERE id = $1`, alertID).Scan(&status, &respondedBy)
		if err != nil {
			t.Fatalf("load claimed alert %s: %v", alertID, err)
		}
		if status != "responded" {
			t.Fatalf("alert %s claimed by %s but status is %s (seed=%d)", alertID, responderID, status, seed)
		}
		if respondedBy == nil || *respondedBy != responderID {
			got := "<nil>"
			if respondedBy != nil {
				got = *respondedBy
			}
			t.Fatalf("alert %s credited to %s, expected %s (seed=%d)", alertID, got, responderID, seed)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	rows, err := pool.Query(ctx,
		`SELECT id, status, created_at, responded_at, responded_by FROM alerts ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		t.Logf("dump alerts error: %v", err)
		return
	}
	defer rows.Close()
	cols := rows.FieldDescriptions()
	t.Logf("-- alerts --")
	for rows.Next() {
		vals, _ := rows.Values()
		buf := make([]any, 0, len(vals))
		for i := range vals {
			buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
		}
		t.Logf("%s", buf)
	}
}
