package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := rootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rt := &runtime{}

	cmd := &cobra.Command{
		Use:           "recordsync",
		Short:         "recordsync pages, hydrates and searches records from a NetSuite account",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close()
		},
	}
	registerFlags(cmd)

	cmd.AddCommand(syncCmd(rt))
	cmd.AddCommand(searchCmd(rt))
	cmd.AddCommand(detailCmd(rt))
	return cmd
}
