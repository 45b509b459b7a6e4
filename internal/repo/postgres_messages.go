package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/smswave/smswave/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) Create(ctx context.Context, m *model.Message) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, user_id, content, channel, status, scheduled_for,
			total_recipients, success_count, failed_count, cost,
			template_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		m.ID, m.UserID, m.Content, m.Channel, string(m.Status), m.ScheduledFor,
		m.TotalRecipients, m.SuccessCount, m.FailedCount, m.Cost,
		m.TemplateID, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (r *PostgresMessageRepo) Get(ctx context.Context, id string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, channel, status, scheduled_for, sent_at,
		       total_recipients, success_count, failed_count, cost,
		       template_id, created_at, updated_at
		FROM messages
		WHERE id = $1
	`, id)

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) BeginSending(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'sending', updated_at = now()
		WHERE id = $1 AND status IN ('draft', 'scheduled')
	`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyProcessing
	}
	return nil
}

func (r *PostgresMessageRepo) Finalize(ctx context.Context, id string, status model.MessageStatus, successCount, failedCount int, cost float64, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2,
		    success_count = $3,
		    failed_count = $4,
		    cost = $5,
		    sent_at = $6,
		    updated_at = now()
		WHERE id = $1
	`, id, string(status), successCount, failedCount, cost, sentAt.UTC())
	return err
}

func (r *PostgresMessageRepo) CancelScheduled(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = 'scheduled'
	`, id, userID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		m, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if m.UserID != userID {
			return ErrNotFound
		}
		return ErrNotScheduled
	}
	return nil
}

func (r *PostgresMessageRepo) ClaimDueScheduled(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, content, channel, status, scheduled_for, sent_at,
		       total_recipients, success_count, failed_count, cost,
		       template_id, created_at, updated_at
		FROM messages
		WHERE status = 'scheduled' AND scheduled_for <= now()
		ORDER BY scheduled_for ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (r *PostgresMessageRepo) UsageStats(ctx context.Context, userID string) (*model.AnalyticsUpdate, error) {
	stats := &model.AnalyticsUpdate{UserID: userID}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(success_count), 0),
		       COALESCE(SUM(failed_count), 0),
		       COALESCE(SUM(cost), 0)
		FROM messages
		WHERE user_id = $1 AND status NOT IN ('draft', 'cancelled')
	`, userID).Scan(&stats.TotalMessages, &stats.TotalSent, &stats.TotalFailed, &stats.TotalCost)
	if err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM message_recipients mr
		JOIN messages m ON m.id = mr.message_id
		WHERE m.user_id = $1 AND mr.status = 'delivered'
	`, userID).Scan(&stats.TotalDelivered)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var status string
	var scheduledFor, sentAt sql.NullTime
	var templateID sql.NullString

	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Content,
		&m.Channel,
		&status,
		&scheduledFor,
		&sentAt,
		&m.TotalRecipients,
		&m.SuccessCount,
		&m.FailedCount,
		&m.Cost,
		&templateID,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Status = model.MessageStatus(status)
	if scheduledFor.Valid {
		t := scheduledFor.Time
		m.ScheduledFor = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	if templateID.Valid {
		s := templateID.String
		m.TemplateID = &s
	}
	return &m, nil
}
