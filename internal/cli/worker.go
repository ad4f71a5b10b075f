package cli

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/sixeradda/ground-booking/internal/config"
	"github.com/sixeradda/ground-booking/internal/invoice"
	"github.com/sixeradda/ground-booking/internal/notify"
	"github.com/sixeradda/ground-booking/internal/obs"
	"github.com/sixeradda/ground-booking/internal/queue"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume booking tasks: SMS notifications and invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			shutdownTracer, err := obs.InitTracer(ctx, cfg.OTel, cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracer(cmd.Context()) }()

			var n notify.Notifier = notify.LogNotifier{}
			if cfg.Twilio.AccountSID != "" {
				n = notify.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
					cfg.Twilio.MessagingServiceSID, cfg.Twilio.FromNumber, cfg.AdminPhone)
			} else {
				log.Printf("worker: TWILIO_ACCOUNT_SID not set; messages are logged only")
			}
			archive := invoice.Archive{
				Renderer: invoice.Renderer{
					Venue: invoice.Venue{Name: cfg.Venue.Name, Address: cfg.Venue.Address, Contact: cfg.Venue.Contact},
					Now:   time.Now,
				},
				Dir: cfg.InvoiceDir,
			}

			pub := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Name)
			defer pub.Close()
			w := queue.NewWorker(cfg.Queue.URL, cfg.Queue.Name, cfg.Queue.Prefetch, cfg.Queue.MaxAttempts, pub)
			queue.RegisterHandlers(w, n, cfg.AdminPhone, archive)
			return w.Run(ctx)
		},
	}
}
