/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/domainkv/apiserver/config"
	"github.com/domainkv/apiserver/internal/mq"
	"github.com/domainkv/apiserver/internal/services"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with record change events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow record change events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		backend, err := mq.NewBackend(cmd.Context(), cfg.Events)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("no events backend configured")
		}
		defer func() {
			_ = backend.Close()
		}()

		return mq.New(backend).Subscribe(cmd.Context(), services.RecordEventsChannel, func(ctx context.Context, msg mq.Message) error {
			fmt.Printf("%s %s\n", msg.ID, msg.Data)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
