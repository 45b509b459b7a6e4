package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smswave/smswave/internal/model"
)

// PostgresContactRepo resolves contact and group references into
// concrete recipients. Lookups are scoped to the owning user, so a
// foreign id behaves exactly like a missing one.
type PostgresContactRepo struct {
	db *sql.DB
}

func NewPostgresContactRepo(db *sql.DB) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

func (r *PostgresContactRepo) ResolveContacts(ctx context.Context, userID string, contactIDs []string) ([]model.Recipient, error) {
	out := make([]model.Recipient, 0, len(contactIDs))
	for _, id := range contactIDs {
		row := r.db.QueryRowContext(ctx, `
			SELECT id, name, phone
			FROM contacts
			WHERE id = $1 AND user_id = $2
		`, id, userID)

		var rec model.Recipient
		if err := row.Scan(&rec.ContactID, &rec.Name, &rec.Phone); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("contact %s not found", id)
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *PostgresContactRepo) ResolveGroups(ctx context.Context, userID string, groupIDs []string) ([]model.Recipient, error) {
	var out []model.Recipient
	for _, id := range groupIDs {
		var exists bool
		err := r.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM contact_groups WHERE id = $1 AND user_id = $2)
		`, id, userID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("group %s not found", id)
		}

		rows, err := r.db.QueryContext(ctx, `
			SELECT c.id, c.name, c.phone
			FROM contacts c
			JOIN contact_group_members m ON m.contact_id = c.id
			WHERE m.group_id = $1 AND c.user_id = $2
			ORDER BY c.name ASC, c.id ASC
		`, id, userID)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var rec model.Recipient
			if err := rows.Scan(&rec.ContactID, &rec.Name, &rec.Phone); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
