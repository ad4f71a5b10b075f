package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sixeradda/ground-booking/internal/config"
	"github.com/sixeradda/ground-booking/internal/database"
	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/repository"
)

// appStore is what every backend provides: the booking guard's store,
// the booked-slot source, the outbox relay's store and the reminder
// enqueuer.
type appStore interface {
	SlotTaken(ctx context.Context, date, slotID string) (bool, error)
	BookedSlotIDs(ctx context.Context, date string) (map[string]bool, error)
	CountByMobile(ctx context.Context, mobile string) (int, error)
	Create(ctx context.Context, b *model.Booking, outbox []model.OutboxEntry) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByDate(ctx context.Context, date string) ([]model.Booking, error)
	Enqueue(ctx context.Context, entries []model.OutboxEntry) (int, error)
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]model.OutboxEntry, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, next time.Time, msg string) error
}

var (
	_ appStore = (*repository.BookingRepo)(nil)
	_ appStore = (*repository.PGBookingRepo)(nil)
	_ appStore = (*repository.MemoryRepo)(nil)
)

type openedStore struct {
	appStore
	driver  string
	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) error
	close   func()
}

// openStore connects the backend selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg config.Config) (*openedStore, error) {
	switch driver := strings.ToLower(cfg.StoreDriver); driver {
	case "mysql", "":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		return &openedStore{
			appStore: repository.NewBookingRepo(db),
			driver:   "mysql",
			ping:     db.PingContext,
			migrate:  func(ctx context.Context) error { return database.MigrateMySQL(ctx, db) },
			close:    func() { _ = db.Close() },
		}, nil
	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &openedStore{
			appStore: repository.NewPGBookingRepo(pool),
			driver:   driver,
			ping:     pool.Ping,
			migrate:  func(ctx context.Context) error { return database.MigratePostgres(ctx, pool) },
			close:    pool.Close,
		}, nil
	case "memory":
		log.Printf("store: using in-memory store; bookings are lost on exit")
		return &openedStore{
			appStore: repository.NewMemoryRepo(),
			driver:   driver,
			ping:     func(context.Context) error { return nil },
			migrate:  func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want mysql, postgres or memory)", cfg.StoreDriver)
	}
}
