package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sixeradda/ground-booking/internal/config"
	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/queue"
	"github.com/sixeradda/ground-booking/internal/service"
)

func newRemindCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Queue reminder SMS for a day's bookings",
		Long: "Queues one reminder per booking on the date whose slot has not started.\n" +
			"Running it again for the same date does not queue duplicates.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == "memory" {
				return fmt.Errorf("remind needs a persistent store; STORE_DRIVER=memory")
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			now := time.Now()
			if date == "" {
				date = now.In(loc).Format(model.DateLayout)
			}
			if _, err := time.ParseInLocation(model.DateLayout, date, loc); err != nil {
				return fmt.Errorf("--date must be yyyy-MM-dd: %w", err)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.close()

			n, err := service.EnqueueReminders(ctx, store, date, now, loc)
			if err != nil {
				return err
			}

			pub := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Name)
			defer pub.Close()
			relay := queue.NewRelay(store, pub, cfg.Queue.RelayInterval, cfg.Queue.RelayBatch)
			published, err := relay.Flush(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d reminders for %s, published %d tasks\n", n, date, published)
			// entries left unpublished are picked up by the serve relay
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "booking date (yyyy-MM-dd); defaults to today")
	return cmd
}
