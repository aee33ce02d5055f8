package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/pkg/client"
)

func commandContext(flags *apiFlags) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), flags.Timeout)
}

func printResult(res client.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

func newStatusCmd(flags *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			st, err := flags.client().Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("status:        %s\n", st.Status)
			if st.PID != 0 {
				fmt.Printf("pid:           %d\n", st.PID)
				fmt.Printf("uptime:        %s\n", (time.Duration(st.UptimeSecs) * time.Second).String())
			}
			fmt.Printf("restart count: %d\n", st.RestartCount)
			if st.AutoRestartRemainingSecs != nil {
				fmt.Printf("next restart:  in %s\n", (time.Duration(*st.AutoRestartRemainingSecs) * time.Second).String())
			}
			if st.NextBackupSecs != nil {
				fmt.Printf("next backup:   in %s\n", (time.Duration(*st.NextBackupSecs) * time.Second).String())
			}
			return nil
		},
	}
}

func newLogsCmd(flags *apiFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent server logs",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			logs, err := flags.client().Logs(ctx, limit)
			if err != nil {
				return err
			}
			for _, ln := range logs {
				fmt.Printf("%s [%s] [%s] %s\n",
					ln.Timestamp.Format(time.RFC3339), ln.Level, ln.Source, ln.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries")
	return cmd
}

func newRestartCmd(flags *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the server",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			return printResult(flags.client().Restart(ctx))
		},
	}
}

func newStopCmd(flags *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			return printResult(flags.client().Stop(ctx))
		},
	}
}

func newSendCmd(flags *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command>...",
		Short: "Send a console command to the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			return printResult(flags.client().Send(ctx, strings.Join(args, " ")))
		},
	}
}

func newBackupCmd(flags *apiFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			infos, err := flags.client().Backups(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%s  %10d bytes  %s\n",
					info.CreatedAt.Format(time.RFC3339), info.SizeBytes, info.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Run a backup now",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Archiving a large world can exceed the normal API timeout.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			c := client.New(client.Config{BaseURL: flags.URL, Token: flags.Token, Timeout: 30 * time.Minute})
			return printResult(c.CreateBackup(ctx))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			return printResult(flags.client().DeleteBackup(ctx, args[0]))
		},
	})

	var outPath string
	download := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			dest := outPath
			if dest == "" {
				dest = args[0]
			}
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			c := client.New(client.Config{BaseURL: flags.URL, Token: flags.Token, Timeout: 30 * time.Minute})
			if err := c.DownloadBackup(ctx, args[0], f); err != nil {
				_ = f.Close()
				_ = os.Remove(dest)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("saved %s\n", dest)
			return nil
		},
	}
	download.Flags().StringVarP(&outPath, "output", "o", "", "destination path (defaults to the archive name)")
	cmd.AddCommand(download)

	return cmd
}

func newConfigCmd(flags *apiFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the running configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the live configuration as JSON",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(flags)
			defer cancel()
			raw, err := flags.client().GetConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	})
	return cmd
}
