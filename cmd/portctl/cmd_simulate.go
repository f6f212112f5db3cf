package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swappnet/swapp/simulate"
)

func newSimulateCmd() *cobra.Command {
	var simPath, listen string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated Cisco access switch over SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			simCfg := simulate.DefaultConfig()
			if simPath != "" {
				loaded, err := simulate.LoadConfig(simPath)
				if err != nil {
					return err
				}
				simCfg = *loaded
			}
			if listen != "" {
				simCfg.Listen = listen
			}
			srv, err := simulate.NewServer(simCfg)
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Close()
			fmt.Printf("simulated switch %s listening on %s (user %s)\n", simCfg.Hostname, srv.Addr(), simCfg.Username)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			return nil
		},
	}
	cmd.Flags().StringVar(&simPath, "file", "", "simulator config (simulate.yaml)")
	cmd.Flags().StringVar(&listen, "listen", "", "override listen address")
	return cmd
}
