/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	mailer "github.com/contactbook/apiserver/internal/mail"
	"github.com/contactbook/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued emails",
	Long: `Consumes the mail queue and delivers each message over SMTP.
Requires MQ_BACKEND to be rabbitmq or pubsub. Usage:

	apiserver worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		queue, err := mq.Open(cmd.Context(), cfg.MQ)
		if errors.Is(err, mq.ErrDisabled) {
			return errors.New("worker requires MQ_BACKEND to be set")
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := queue.Close(); err != nil {
				log.Warn("close message queue", "error", err)
			}
		}()

		worker := mailer.NewWorker(queue, cfg.Mail.Queue, mailer.NewSMTPSender(cfg.SMTP), log)
		if err := worker.Run(cmd.Context()); err != nil {
			return fmt.Errorf("mail worker: %w", err)
		}
		log.Info("mail worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
