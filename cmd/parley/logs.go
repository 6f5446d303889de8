package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/parley/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage parley's log files",
}

var logsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the active log file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), logger.Path())
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete parley and stream log files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := logger.ClearLogs()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d log file(s)\n", n)
		return nil
	},
}

func init() {
	logsCmd.AddCommand(logsPathCmd, logsClearCmd)
}
