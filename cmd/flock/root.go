package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flock",
		Short:         "flock: run a pool of Discord accounts from the terminal",
		Long:          "flock connects every configured account to the Discord gateway, prints the traffic it observes, and keeps the sessions alive until interrupted.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
	)

	return rootCmd
}
