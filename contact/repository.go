package contact

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is a read-only view over the emergency_contacts collection.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByOwner returns the reporter's registered contacts in registration
// order.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]EmergencyContact, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("contact: missing owner id")
	}

	const query = `
		SELECT id::text, owner_id, name, phone, relationship
		FROM emergency_contacts
		WHERE owner_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("contact: list by owner: %w", err)
	}
	defer rows.Close()

	out := make([]EmergencyContact, 0, 4)
	for rows.Next() {
		var c EmergencyContact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.Relationship); err != nil {
			return nil, fmt.Errorf("contact: scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact: iterate contacts: %w", err)
	}
	return out, nil
}
