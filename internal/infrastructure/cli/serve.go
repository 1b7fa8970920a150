package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/farol/internal/infrastructure/sse"
	"github.com/felixgeelhaar/farol/internal/infrastructure/watch"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/infrastructure/dashboard"
	"github.com/felixgeelhaar/farol/pkg/infrastructure/webhook"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveInterval time.Duration
	serveNoWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web dashboard",
	Long: `Serve the web dashboard and its JSON API.

The last saved snapshot is shown immediately when present, then fresh data is
fetched. Edits to the config file are applied without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(true)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		notifier, err := svc.newNotifier()
		if err != nil {
			return err
		}
		if notifier != nil {
			unsubscribe := svc.dashboard.Subscribe(func(snap *application.Snapshot) {
				notifier.Observe(ctx, snap)
			})
			defer unsubscribe()
		}

		if _, err := svc.dashboard.LoadSaved(ctx); err != nil {
			svc.logger.Debug("no saved snapshot to show", "err", err)
		}
		go func() {
			if _, err := svc.dashboard.Refresh(ctx); err != nil {
				svc.logger.Error("initial refresh failed", "err", err)
			}
		}()

		addr := serveAddr
		if addr == "" {
			addr = svc.cfg.Dashboard.Addr
		}
		server, err := dashboard.NewServer(addr, svc.dashboard, svc.logger)
		if err != nil {
			return err
		}
		events := sse.NewSSEHandler(svc.dashboard)
		defer events.Close()
		server.Handle("GET /events", events)

		if svc.cfg.Webhook.Enabled {
			trigger := watch.NewDebouncer(watch.DefaultDebounce, func() {
				go func() {
					if _, err := svc.dashboard.Refresh(ctx); err != nil && !errors.Is(err, application.ErrStaleRefresh) {
						svc.logger.Warn("webhook refresh failed", "err", err)
					}
				}()
			})
			defer trigger.Stop()
			receiver := webhook.NewReceiver(
				webhook.NewTrelloHandler(svc.cfg.Webhook.Secret, svc.cfg.Webhook.CallbackURL),
				refreshOnChange(trigger),
				svc.logger,
			)
			server.Handle("/webhooks/trello", receiver)
		}

		interval := serveInterval
		if interval == 0 {
			interval = svc.cfg.Dashboard.RefreshInterval
		}
		go svc.dashboard.Run(ctx, interval)

		if !serveNoWatch {
			watcher, err := watch.NewFSWatcher(watch.DefaultDebounce, func(ev watch.ChangeEvent) {
				svc.logger.Info("config changed", "path", ev.Path, "change", ev.ChangeType)
				svc.reload(ctx)
			})
			if err != nil {
				return err
			}
			if err := watcher.WatchFile(svc.cfgPath); err != nil {
				return err
			}
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					svc.logger.Warn("config watcher stopped", "err", err)
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	},
}

// refreshOnChange schedules a debounced refresh for every event that can
// change the metrics.
func refreshOnChange(trigger *watch.Debouncer) webhook.EventProcessor {
	return webhook.ProcessorFunc(func(_ context.Context, e *webhook.Event) error {
		if e.AffectsDashboard() {
			trigger.Trigger()
		}
		return nil
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from dashboard.addr)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Refresh interval (default from dashboard.refresh_interval, 0 disables)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload when the config file changes")
	RootCmd.AddCommand(serveCmd)
}
