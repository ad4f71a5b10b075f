package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/sixeradda/ground-booking/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// BookingRepo stores bookings and their outbox entries in MySQL.  The
// bookings table carries a unique key on (booking_date, slot_id); Create
// relies on it to reject the second of two concurrent inserts.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle for health checks.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, name, mobile_number, players, DATE_FORMAT(booking_date, '%Y-%m-%d'),
	slot_id, start_time, end_time, is_night_session, discount_code, final_price, created_at`

// SlotTaken reports whether a booking exists for the date and slot.
func (r *BookingRepo) SlotTaken(ctx context.Context, date, slotID string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_date = ? AND slot_id = ?)`,
		date, slotID).Scan(&taken)
	return taken, err
}

// BookedSlotIDs returns the set of slot ids booked on date.
func (r *BookingRepo) BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT slot_id FROM bookings WHERE booking_date = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	booked := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		booked[id] = true
	}
	return booked, rows.Err()
}

// CountByMobile counts committed bookings made with the mobile number.
func (r *BookingRepo) CountByMobile(ctx context.Context, mobile string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE mobile_number = ?`, mobile).Scan(&n)
	return n, err
}

// Create inserts the booking and its outbox entries in one transaction.
// A duplicate (booking_date, slot_id) yields ErrSlotTaken and nothing is
// written.  CreatedAt is set on b when zero.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking, outbox []model.OutboxEntry) (err error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (id, name, mobile_number, players, booking_date, slot_id,
			start_time, end_time, is_night_session, discount_code, final_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.MobileNumber, b.Players, b.BookingDate, b.SlotID,
		b.StartTime, b.EndTime, b.IsNightSession, b.DiscountCode, b.FinalPrice, b.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			err = ErrSlotTaken
		}
		return err
	}
	if _, err = insertOutbox(ctx, tx, outbox, false); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByID loads one booking.  ErrNotFound is returned when it does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListByDate returns the bookings of a date ordered by slot start time.
func (r *BookingRepo) ListByDate(ctx context.Context, date string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE booking_date = ? ORDER BY start_time`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b    model.Booking
		code sql.NullString
	)
	err := s.Scan(&b.ID, &b.Name, &b.MobileNumber, &b.Players, &b.BookingDate,
		&b.SlotID, &b.StartTime, &b.EndTime, &b.IsNightSession, &code, &b.FinalPrice, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if code.Valid {
		c := code.String
		b.DiscountCode = &c
	}
	return &b, nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
