package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/gateway"
	"github.com/rahul/autopilot/internal/observability"
)

func newServeCmd(a *app) *cobra.Command {
	var metricsAddr string
	var dashboard bool
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept commands from chat gateways and run scheduled commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			log := a.logger.Named("serve")

			s, err := a.catalogStore()
			if err != nil {
				return err
			}
			hist, err := a.history()
			if err != nil {
				return err
			}
			defer hist.Close()

			metrics := observability.NewMetrics()
			e := a.engine(s, hist, metrics, observability.StatusObserver{})
			defer func() {
				if err := e.Close(); err != nil {
					log.Warn("Failed to release browser.", zap.Error(err))
				}
			}()
			d := agent.NewDispatcher(a.matcher(s), e,
				agent.WithCommandLog(hist),
				agent.WithMatchObserver(metrics),
				agent.WithLogger(a.logger))

			var gateways []gateway.Messenger
			if gc, ok := a.cfg.GetTelegramConfig(); ok {
				tg, err := gateway.NewTelegramGateway(gc, d, a.logger)
				if err != nil {
					return err
				}
				gateways = append(gateways, tg)
			}
			if gc, ok := a.cfg.GetDiscordConfig(); ok {
				dc, err := gateway.NewDiscordGateway(gc, d, a.logger)
				if err != nil {
					return err
				}
				gateways = append(gateways, dc)
			}
			if len(gateways) == 0 {
				log.Warn("No chat gateway enabled; only scheduled commands will run.")
			}

			scheduler := agent.NewScheduler(d, hist, gateway.NewRouter(gateways...), a.logger)
			if poll > 0 {
				scheduler.Poll = poll
			}

			if dashboard && observability.IsTerminal() {
				observability.PrintBanner()
				observability.InitializeTerminal()
				defer observability.CleanupTerminal()
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, gw := range gateways {
				g.Go(func() error { return gw.Start(ctx) })
			}
			g.Go(func() error {
				scheduler.Start(ctx)
				return nil
			})

			if a.cfg.Catalog.Watch && a.cfg.Catalog.Path != "" {
				w, err := catalog.NewWatcher(a.cfg.Catalog.Path, s, a.cfg.Catalog.Debounce, a.logger)
				if err != nil {
					return err
				}
				g.Go(func() error { return w.Run(ctx) })
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					log.Info("Serving metrics.", zap.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			g.Go(func() error {
				refresh := time.NewTicker(time.Second)
				beat := time.NewTicker(30 * time.Second)
				defer refresh.Stop()
				defer beat.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-beat.C:
						observability.Heartbeat()
					case <-refresh.C:
						if dashboard && observability.IsTerminal() {
							observability.PrintLiveStatus()
						}
					}
				}
			})

			err = g.Wait()
			log.Info("Shutting down.")
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default metrics.addr)")
	cmd.Flags().BoolVar(&dashboard, "dashboard", true, "show the live status line when attached to a terminal")
	cmd.Flags().DurationVar(&poll, "schedule-poll", agent.DefaultPollInterval, "how often to check for due scheduled commands")
	return cmd
}
