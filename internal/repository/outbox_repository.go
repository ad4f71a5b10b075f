package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sixeradda/ground-booking/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertOutbox writes entries through ex, the booking transaction or the
// pool.  With ignoreDuplicates an entry whose id already exists is skipped;
// any other failure, such as a missing booking, is still returned.
func insertOutbox(ctx context.Context, ex execer, entries []model.OutboxEntry, ignoreDuplicates bool) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	query := `INSERT INTO booking_outbox (id, booking_id, kind, payload, next_attempt_at) VALUES `
	args := make([]interface{}, 0, len(entries)*5)
	for i, e := range entries {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		next := e.NextAttemptAt
		if next.IsZero() {
			next = time.Now().UTC()
		}
		args = append(args, e.ID, e.BookingID, e.Kind, e.Payload, next)
	}
	if ignoreDuplicates {
		// a no-op update reports 0 affected rows
		query += ` ON DUPLICATE KEY UPDATE id = id`
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Enqueue adds entries outside of a booking transaction.  Entries whose id
// is already present are ignored, so re-running a scheduled job with
// deterministic ids does not duplicate work.  It returns the number of
// rows inserted.
func (r *BookingRepo) Enqueue(ctx context.Context, entries []model.OutboxEntry) (int, error) {
	n, err := insertOutbox(ctx, r.db, entries, true)
	return int(n), err
}

// DueOutbox returns unpublished entries whose next attempt is at or before
// now, oldest first.
func (r *BookingRepo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, booking_id, kind, payload, attempts, next_attempt_at, last_error, created_at
		   FROM booking_outbox
		  WHERE published_at IS NULL AND next_attempt_at <= ?
		  ORDER BY created_at
		  LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OutboxEntry
	for rows.Next() {
		var (
			e       model.OutboxEntry
			lastErr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Kind, &e.Payload, &e.Attempts,
			&e.NextAttemptAt, &lastErr, &e.CreatedAt); err != nil {
			return nil, err
		}
		if lastErr.Valid {
			s := lastErr.String
			e.LastError = &s
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkPublished records that the entry reached the queue.
func (r *BookingRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE booking_outbox SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		at.UTC(), id)
	return err
}

// MarkFailed records a failed publish and schedules the next attempt.
func (r *BookingRepo) MarkFailed(ctx context.Context, id string, next time.Time, msg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE booking_outbox SET attempts = attempts + 1, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		next.UTC(), msg, id)
	return err
}
