package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swappnet/swapp/internal/service"
)

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <port-token> <command>",
		Short: "Submit a command to the configured queue store",
		Long:  "Port tokens use the queue separator instead of '/', e.g. Gi1_0_5. Commands are enable or disable.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := service.ParseVerb(args[1]); err != nil {
				return err
			}
			if _, err := service.TranslatePortToken(args[0], cfg.Queue.PortSeparator); err != nil {
				return err
			}
			store, closeStore, err := service.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			enq, ok := store.(service.Enqueuer)
			if !ok {
				return fmt.Errorf("store backend %q does not accept commands", cfg.Store.Backend)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			id, err := enq.Enqueue(ctx, cfg.Device.Key, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("queued %s (%s %s) for %s\n", id, args[1], args[0], cfg.Device.Key)
			return nil
		},
	}
}
