package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JamesWemyss/psyclone/runtime"
	"github.com/JamesWemyss/psyclone/server"
	"github.com/JamesWemyss/psyclone/tools"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Server.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.Server.GRPCAddr = grpcAddr
			}
			logger.Info().
				Str("http", cfg.Server.HTTPAddr).
				Str("grpc", cfg.Server.GRPCAddr).
				Str("db", cfg.Database.Path).
				Msg("psyclone starting")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close() //nolint:errcheck // No remedy for db close errors

			srv, err := server.New(server.Config{
				HTTPAddr:    cfg.Server.HTTPAddr,
				GRPCAddr:    cfg.Server.GRPCAddr,
				CORSOrigins: cfg.Server.CORSOrigins,
				Logger:      logger,
			}, server.Deps{
				Dispatcher:   svc.dispatcher,
				Orchestrator: svc.orchestrator,
				Executors:    svc.executors,
				Turns:        svc.turns,
				Metrics:      svc.metrics,
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })

			if cfg.Reminders.Enabled {
				scheduler, err := runtime.NewScheduler(svc.store, tools.NewDesktopNotifier(logger),
					cfg.Reminders.Schedule, cfg.Reminders.LookaheadDays, cfg.Location(), logger)
				if err != nil {
					return fmt.Errorf("failed to create scheduler: %w", err)
				}
				g.Go(func() error {
					scheduler.Start(gctx)
					return nil
				})
				logger.Info().Str("schedule", cfg.Reminders.Schedule).Msg("Reminder scheduler started")
			}

			err = g.Wait()
			if err != nil && !isCancel(err) {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info().Msg("psyclone shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC listen address (overrides config)")
	return cmd
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
