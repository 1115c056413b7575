package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_responded_bookkeeping",
			SQL: `SELECT id, status FROM alerts
                  WHERE (status = 'responded' AND (responded_at IS NULL OR responded_by IS NULL))
                     OR (status = 'active' AND (responded_at IS NOT NULL OR responded_by IS NOT NULL))`,
		},
		{
			Name: "O2_responded_after_created",
			SQL: `SELECT id, created_at, responded_at FROM alerts
                  WHERE responded_at IS NOT NULL AND responded_at < created_at`,
		},
		{
			Name: "O3_coordinate_bounds",
			SQL: `SELECT id, latitude, longitude FROM alerts
                  WHERE latitude < -90 OR latitude > 90 OR longitude < -180 OR longitude > 180`,
		},
		{
			Name: "O4_known_status",
			SQL:  `SELECT id, status FROM alerts WHERE status NOT IN ('active','responded')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name when every invariant holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
