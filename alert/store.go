package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the Postgres NOTIFY channel carrying alert ids whenever a
// row is inserted or transitioned. Listener subscriptions key off it.
const notifyChannel = "lifeline_alerts"

const alertColumns = `
id::text, reporter_id, reporter_name, reporter_phone, identifying_feature,
photo_url, latitude, longitude, status::text, created_at, responded_at,
responded_by`

// Store is the single source of truth for alert records.
type Store struct {
	pool  *pgxpool.Pool
	idGen func() string
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, idGen: uuid.NewString}
}

// WithIDGenerator overrides id generation, for deterministic tests.
func (s *Store) WithIDGenerator(gen func() string) *Store {
	s.idGen = gen
	return s
}

// Create appends a new active alert in a single transaction and notifies
// subscribers. There is no partial-record path: either the full row commits
// or nothing does.
func (s *Store) Create(ctx context.Context, params CreateParams) (Alert, error) {
	if params.ReporterID == "" {
		return Alert{}, fmt.Errorf("alert: missing reporter id")
	}
	if params.Latitude < -90 || params.Latitude > 90 || params.Longitude < -180 || params.Longitude > 180 {
		return Alert{}, fmt.Errorf("alert: invalid location %f,%f", params.Latitude, params.Longitude)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Alert{}, fmt.Errorf("alert: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
        INSERT INTO alerts (id, reporter_id, reporter_name, reporter_phone, identifying_feature, photo_url, latitude, longitude, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'active')
        RETURNING ` + alertColumns

	var rec Alert
	if err := scanAlert(tx.QueryRow(ctx, insertSQL,
		s.idGen(),
		params.ReporterID,
		params.ReporterName,
		params.ReporterPhone,
		params.IdentifyingFeature,
		params.PhotoURL,
		params.Latitude,
		params.Longitude,
	), &rec); err != nil {
		return Alert{}, fmt.Errorf("alert: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, rec.ID); err != nil {
		return Alert{}, fmt.Errorf("alert: notify create: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Alert{}, fmt.Errorf("alert: commit: %w", err)
	}
	return rec, nil
}

// Get returns a single alert by id.
func (s *Store) Get(ctx context.Context, id string) (Alert, error) {
	var rec Alert
	err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id), &rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, ErrNotFound
		}
		return Alert{}, fmt.Errorf("alert: get: %w", err)
	}
	return rec, nil
}

// ListActive returns the full current set of active alerts, most recent
// first. Subscribers treat each delivery of this set as a complete
// replacement of their working copy.
func (s *Store) ListActive(ctx context.Context) ([]Alert, error) {
	const query = `SELECT ` + alertColumns + ` FROM alerts WHERE status = 'active' ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("alert: list active: %w", err)
	}
	defer rows.Close()

	out := make([]Alert, 0, 8)
	for rows.Next() {
		var rec Alert
		if err := scanAlert(rows, &rec); err != nil {
			return nil, fmt.Errorf("alert: scan active: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alert: iterate active: %w", err)
	}
	return out, nil
}

// TransitionToResponded performs the storage-layer compare-and-swap: the
// update only lands while the row is still active, so under concurrent
// responders exactly one caller gets the row back and every other caller is
// told the alert was already handled.
func (s *Store) TransitionToResponded(ctx context.Context, alertID, responderID string) (Alert, error) {
	if alertID == "" {
		return Alert{}, fmt.Errorf("alert: missing alert id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Alert{}, fmt.Errorf("alert: begin respond tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSQL := `
        UPDATE alerts
        SET status = 'responded',
            responded_at = now(),
            responded_by = $2
        WHERE id = $1 AND status = 'active'
        RETURNING ` + alertColumns

	var rec Alert
	err = scanAlert(tx.QueryRow(ctx, updateSQL, alertID, nullable(responderID)), &rec)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, fmt.Errorf("alert: respond update: %w", err)
		}
		// No row matched: either the alert is gone or someone else won.
		var status string
		if err := tx.QueryRow(ctx, `SELECT status::text FROM alerts WHERE id = $1`, alertID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Alert{}, ErrNotFound
			}
			return Alert{}, fmt.Errorf("alert: respond lookup: %w", err)
		}
		return Alert{}, ErrAlreadyResponded
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, rec.ID); err != nil {
		return Alert{}, fmt.Errorf("alert: notify respond: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Alert{}, fmt.Errorf("alert: commit respond: %w", err)
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanAlert(row pgx.Row, rec *Alert) error {
	return row.Scan(
		&rec.ID,
		&rec.ReporterID,
		&rec.ReporterName,
		&rec.ReporterPhone,
		&rec.IdentifyingFeature,
		&rec.PhotoURL,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Status,
		&rec.CreatedAt,
		&rec.RespondedAt,
		&rec.RespondedBy,
	)
}
