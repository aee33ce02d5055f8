package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/warden"
)

type serveFlags struct {
	ConfigPath string
	Daemonize  bool
	PIDFile    string
	LogFile    string
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor",
		Example: `  warden serve --config config.json
  warden serve --config config.json --daemonize --pidfile /run/warden.pid`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if flags.Daemonize {
				return daemonize(flags.PIDFile, flags.LogFile)
			}
			return runServe(flags.ConfigPath)
		},
	}
	cmd.Flags().StringVar(&flags.ConfigPath, "config", "config.json", "path to the config file (created with defaults if missing)")
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&flags.PIDFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon output to this file")
	return cmd
}

func runServe(configPath string) error {
	w, err := warden.New(configPath)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	fmt.Printf("received %s, shutting down\n", s)

	return w.Close()
}
