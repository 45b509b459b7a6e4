package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smswave/smswave/internal/model"
)

type PostgresRecipientRepo struct {
	db *sql.DB
}

func NewPostgresRecipientRepo(db *sql.DB) *PostgresRecipientRepo {
	return &PostgresRecipientRepo{db: db}
}

func (r *PostgresRecipientRepo) InsertBulk(ctx context.Context, recipients []model.MessageRecipient) error {
	if len(recipients) == 0 {
		return nil
	}

	now := time.Now().UTC()

	const cols = 8
	placeholders := make([]string, 0, len(recipients))
	args := make([]any, 0, len(recipients)*cols)
	for i, rec := range recipients {
		base := i * cols
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args, rec.ID, rec.MessageID, rec.Phone, rec.Name, rec.ContactID, string(rec.Status), now, now)
	}

	query := `
		INSERT INTO message_recipients (
			id, message_id, phone, name, contact_id, status, created_at, updated_at
		) VALUES ` + strings.Join(placeholders, ", ")

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *PostgresRecipientRepo) ListByMessage(ctx context.Context, messageID string) ([]model.MessageRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, phone, name, contact_id, status,
		       sent_at, delivered_at, error_message, carrier_sid, cost,
		       created_at, updated_at
		FROM message_recipients
		WHERE message_id = $1
		ORDER BY created_at ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageRecipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *PostgresRecipientRepo) UpdateStatusByPhone(ctx context.Context, messageID, phone string, status model.RecipientStatus, errorMessage, carrierSID *string, cost float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE message_recipients
		SET status = $3,
		    error_message = COALESCE($4, error_message),
		    carrier_sid = COALESCE($5, carrier_sid),
		    cost = CASE WHEN $6 > 0 THEN $6 ELSE cost END,
		    sent_at = CASE WHEN $3 = 'sent' AND sent_at IS NULL THEN now() ELSE sent_at END,
		    delivered_at = CASE WHEN $3 = 'delivered' AND delivered_at IS NULL THEN now() ELSE delivered_at END,
		    updated_at = now()
		WHERE message_id = $1 AND phone = $2
	`, messageID, phone, string(status), errorMessage, carrierSID, cost)
	return err
}

func (r *PostgresRecipientRepo) GetByPhone(ctx context.Context, messageID, phone string) (*model.MessageRecipient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, message_id, phone, name, contact_id, status,
		       sent_at, delivered_at, error_message, carrier_sid, cost,
		       created_at, updated_at
		FROM message_recipients
		WHERE message_id = $1 AND phone = $2
	`, messageID, phone)

	rec, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecipient(row rowScanner) (*model.MessageRecipient, error) {
	var rec model.MessageRecipient
	var status string
	var contactID, errorMessage, carrierSID sql.NullString
	var sentAt, deliveredAt sql.NullTime

	if err := row.Scan(
		&rec.ID,
		&rec.MessageID,
		&rec.Phone,
		&rec.Name,
		&contactID,
		&status,
		&sentAt,
		&deliveredAt,
		&errorMessage,
		&carrierSID,
		&rec.Cost,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = model.RecipientStatus(status)
	if contactID.Valid {
		s := contactID.String
		rec.ContactID = &s
	}
	if errorMessage.Valid {
		s := errorMessage.String
		rec.ErrorMessage = &s
	}
	if carrierSID.Valid {
		s := carrierSID.String
		rec.CarrierSID = &s
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		rec.DeliveredAt = &t
	}
	return &rec, nil
}
