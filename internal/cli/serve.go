package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/sixeradda/ground-booking/internal/config"
	"github.com/sixeradda/ground-booking/internal/handler"
	"github.com/sixeradda/ground-booking/internal/invoice"
	"github.com/sixeradda/ground-booking/internal/middleware"
	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/obs"
	"github.com/sixeradda/ground-booking/internal/queue"
	"github.com/sixeradda/ground-booking/internal/repository"
	"github.com/sixeradda/ground-booking/internal/router"
	"github.com/sixeradda/ground-booking/internal/service"
)

func newServeCmd() *cobra.Command {
	var migrate, relay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serve(ctx, cfg, migrate, relay)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	cmd.Flags().BoolVar(&relay, "relay", true, "run the outbox relay in this process")
	return cmd
}

// newBookingServices builds the availability and booking services over
// store with the Redis booked-set cache in front of availability.  The
// cache is invalidated on commit, before Create returns.
func newBookingServices(store appStore, rdb *redis.Client, cacheCfg config.CacheConfig, loc *time.Location) (*service.AvailabilityService, *service.BookingService) {
	booked := repository.NewBookedCache(store, rdb, cacheCfg.BookedTTL, cacheCfg.Prefix)
	bookings := service.NewBookingService(store, loc)
	bookings.OnCommit("booked-cache", func(ctx context.Context, b model.Booking) error {
		return booked.Invalidate(ctx, b.BookingDate)
	})
	return service.NewAvailabilityService(booked, loc), bookings
}

func serve(ctx context.Context, cfg config.Config, migrate, runRelay bool) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()
	if migrate {
		if err := store.migrate(ctx); err != nil {
			return err
		}
	}

	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	avail, bookings := newBookingServices(store, rdb, cacheCfg, loc)

	pub := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Name)
	defer pub.Close()
	relay := queue.NewRelay(store, pub, cfg.Queue.RelayInterval, cfg.Queue.RelayBatch)
	relayDone := make(chan struct{})
	if runRelay {
		bookings.AfterCommit("outbox-relay", relay.AfterCommit)
		go func() {
			defer close(relayDone)
			_ = relay.Run(ctx)
		}()
	} else {
		close(relayDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, handler.Ready(store.ping))
	router.RegisterSlots(e, handler.NewSlotHandler(avail), middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterBookings(e, &handler.BookingHandler{
		Bookings: bookings,
		Invoices: invoice.Renderer{
			Venue: invoice.Venue{Name: cfg.Venue.Name, Address: cfg.Venue.Address, Contact: cfg.Venue.Contact},
			Now:   time.Now,
		},
		InvoiceSecret: cfg.InvoiceSecret,
		InvoiceTTL:    cfg.InvoiceLinkTTL,
		BaseURL:       cfg.BaseURL,
	}, middleware.NewTokenBucket(rlCfg, rdb))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, store=%s)", addr, cfg.Env, store.driver)
	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(addr) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	bookings.Wait()
	<-relayDone
	return nil
}
