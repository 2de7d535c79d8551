/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mailer"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/notify"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued verification mail",
	Long: `Consumes verification requests published by the API server and
sends them over SMTP. Requires QUEUE_BACKEND to be set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.NewFromConfig(ctx, cfg.Queue)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("QUEUE_BACKEND is required for the worker")
		}
		defer func() {
			_ = queue.Close()
		}()

		mail := mailer.New(cfg.Mail, cfg.AppURL, logger)
		if !mail.Enabled() {
			logger.Warn("smtp is not configured, verification mail will be dropped")
		}

		logger.Info("worker started", "backend", cfg.Queue.Backend, "channel", cfg.Queue.Channel)
		err = queue.Subscribe(ctx, cfg.Queue.Channel, notify.VerificationHandler(mail, logger))
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker stopped: %w", err)
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
