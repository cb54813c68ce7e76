package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/platform/cache"
	"github.com/ehr/hl7bridge/internal/platform/db"
	"github.com/ehr/hl7bridge/internal/platform/queue"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume conversion jobs from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info().Msg("worker stopped")
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	var (
		file   string
		tenant string
		strict bool
	)

	cmd := &cobra.Command{
		Use:       "enqueue <hl7-to-fhir|fhir-to-hl7>",
		Short:     "Publish a conversion job to the Redis queue",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(convert.HL7ToFHIR), string(convert.FHIRToHL7)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("enqueue requires REDIS_URL")
			}
			if tenant == "" {
				tenant = cfg.DefaultTenant
			}
			if !db.ValidTenantID(tenant) {
				return fmt.Errorf("invalid tenant identifier: %s", tenant)
			}
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client, err := cache.Dial(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			q := queue.New(client, queue.Config{Prefix: cfg.QueuePrefix, MaxAttempts: cfg.QueueMaxAttempts}, logger)
			id, err := q.Publish(ctx, queue.Job{
				TenantID:  tenant,
				Direction: args[0],
				Payload:   string(payload),
				Strict:    strict,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (default DEFAULT_TENANT)")
	cmd.Flags().BoolVar(&strict, "strict", false, "withhold output when any error is reported")
	return cmd
}
