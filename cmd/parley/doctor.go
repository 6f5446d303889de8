package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/parley/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the config, tool profiles, logs and backend socket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := doctor.Run(cmd.Context(), doctor.DefaultChecks(cfg))
		fmt.Fprint(cmd.OutOrStdout(), doctor.Format(results))
		return doctor.ValidateRequired(results)
	},
}
