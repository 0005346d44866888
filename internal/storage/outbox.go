package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

func (r *SQLiteRepository) EnqueueEmail(ctx context.Context, e core.OutboxEmail) (core.OutboxEmail, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := r.now().UTC()
	e.Status = core.EmailPending
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_outbox (id, recipient, subject, html, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
		e.ID, e.To, e.Subject, e.HTML, string(e.Status), fmtTime(now), fmtTime(now))
	if err != nil {
		return core.OutboxEmail{}, fmt.Errorf("enqueue email: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) PendingEmails(ctx context.Context, limit, maxAttempts int) ([]core.OutboxEmail, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient, subject, html, status, attempts, last_error, created_at, updated_at
		FROM email_outbox
		WHERE status = 'pending' OR (status = 'failed' AND attempts < ?)
		ORDER BY created_at LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("pending emails: %w", err)
	}
	defer rows.Close()

	var out []core.OutboxEmail
	for rows.Next() {
		var (
			e                core.OutboxEmail
			status           string
			created, updated string
		)
		if err := rows.Scan(&e.ID, &e.To, &e.Subject, &e.HTML, &status, &e.Attempts, &e.LastError, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		e.Status = core.EmailStatus(status)
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		e.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkEmailSent(ctx context.Context, id string) error {
	return r.markEmail(ctx, id, core.EmailSent, "")
}

func (r *SQLiteRepository) MarkEmailFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.markEmail(ctx, id, core.EmailFailed, msg)
}

func (r *SQLiteRepository) markEmail(ctx context.Context, id string, status core.EmailStatus, lastErr string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE email_outbox SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), lastErr, fmtTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark email %s %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dataservice.ErrNotFound
	}
	return nil
}
