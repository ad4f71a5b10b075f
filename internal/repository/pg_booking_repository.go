package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sixeradda/ground-booking/internal/model"
)

const pgUniqueViolation = "23505"

// PGBookingRepo is the PostgreSQL store.  It mirrors BookingRepo; the
// conditional insert uses ON CONFLICT DO NOTHING so a lost race returns no
// row instead of an error.
type PGBookingRepo struct {
	pool *pgxpool.Pool
}

// NewPGBookingRepo returns a PGBookingRepo bound to pool.
func NewPGBookingRepo(pool *pgxpool.Pool) *PGBookingRepo { return &PGBookingRepo{pool: pool} }

const pgBookingColumns = `id, name, mobile_number, players, to_char(booking_date, 'YYYY-MM-DD'),
	slot_id, start_time, end_time, is_night_session, discount_code, final_price, created_at`

func pgDate(date string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking date %q: %w", date, err)
	}
	return d, nil
}

func (r *PGBookingRepo) SlotTaken(ctx context.Context, date, slotID string) (bool, error) {
	d, err := pgDate(date)
	if err != nil {
		return false, err
	}
	var taken bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_date = $1 AND slot_id = $2)`,
		d, slotID).Scan(&taken)
	return taken, err
}

func (r *PGBookingRepo) BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error) {
	d, err := pgDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT slot_id FROM bookings WHERE booking_date = $1`, d)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	booked := make(map[string]bool, len(ids))
	for _, id := range ids {
		booked[id] = true
	}
	return booked, nil
}

func (r *PGBookingRepo) CountByMobile(ctx context.Context, mobile string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE mobile_number = $1`, mobile).Scan(&n)
	return n, err
}

// Create inserts the booking and its outbox entries in one transaction.
func (r *PGBookingRepo) Create(ctx context.Context, b *model.Booking, outbox []model.OutboxEntry) error {
	d, err := pgDate(b.BookingDate)
	if err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	// no-op after Commit
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO bookings (id, name, mobile_number, players, booking_date, slot_id,
			start_time, end_time, is_night_session, discount_code, final_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (booking_date, slot_id) DO NOTHING
		 RETURNING id`,
		b.ID, b.Name, b.MobileNumber, b.Players, d, b.SlotID,
		b.StartTime, b.EndTime, b.IsNightSession, b.DiscountCode, b.FinalPrice, b.CreatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSlotTaken
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "uniq_booking_slot" {
			return ErrSlotTaken
		}
		return err
	}
	if _, err := pgInsertOutbox(ctx, tx, outbox, false); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGBookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgBookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := pgScanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *PGBookingRepo) ListByDate(ctx context.Context, date string) ([]model.Booking, error) {
	d, err := pgDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgBookingColumns+` FROM bookings WHERE booking_date = $1 ORDER BY start_time`, d)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := pgScanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func pgScanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.Name, &b.MobileNumber, &b.Players, &b.BookingDate,
		&b.SlotID, &b.StartTime, &b.EndTime, &b.IsNightSession, &b.DiscountCode, &b.FinalPrice, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// pgInsertOutbox queues one INSERT per entry in a single batch round trip.
func pgInsertOutbox(ctx context.Context, tx pgx.Tx, entries []model.OutboxEntry, ignoreDuplicates bool) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	q := `INSERT INTO booking_outbox (id, booking_id, kind, payload, next_attempt_at) VALUES ($1, $2, $3, $4, $5)`
	if ignoreDuplicates {
		q += ` ON CONFLICT (id) DO NOTHING`
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		next := e.NextAttemptAt
		if next.IsZero() {
			next = time.Now().UTC()
		}
		batch.Queue(q, e.ID, e.BookingID, e.Kind, e.Payload, next)
	}
	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range entries {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, br.Close()
}

func (r *PGBookingRepo) Enqueue(ctx context.Context, entries []model.OutboxEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	n, err := pgInsertOutbox(ctx, tx, entries, true)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit(ctx)
}

func (r *PGBookingRepo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, booking_id, kind, payload, attempts, next_attempt_at, last_error, created_at
		   FROM booking_outbox
		  WHERE published_at IS NULL AND next_attempt_at <= $1
		  ORDER BY created_at
		  LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OutboxEntry
	for rows.Next() {
		var e model.OutboxEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Kind, &e.Payload, &e.Attempts,
			&e.NextAttemptAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGBookingRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE booking_outbox SET published_at = $1, attempts = attempts + 1, last_error = NULL WHERE id = $2`,
		at.UTC(), id)
	return err
}

func (r *PGBookingRepo) MarkFailed(ctx context.Context, id string, next time.Time, msg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE booking_outbox SET attempts = attempts + 1, next_attempt_at = $1, last_error = $2 WHERE id = $3`,
		next.UTC(), msg, id)
	return err
}
