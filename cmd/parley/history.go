package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhubert/parley/backend"
	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/engine"
)

var historyOutput string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear a project's backend history",
}

var historyExportCmd = &cobra.Command{
	Use:   "export [project-dir]",
	Short: "Write the history as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args, func(ctx context.Context, eng *engine.Engine, dir string) error {
			sess, err := eng.Open(dir)
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if historyOutput != "" && historyOutput != "-" {
				f, err := os.Create(historyOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return eng.ExportHistory(ctx, sess, w)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show [project-dir]",
	Short: "Print the history as a plain transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args, func(ctx context.Context, eng *engine.Engine, dir string) error {
			sess, err := eng.Open(dir)
			if err != nil {
				return err
			}
			entries, err := eng.History(ctx, sess)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), config.FormatTranscript(config.Messages(entries)))
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [project-dir]",
	Short: "Ask the backend to drop the history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args, func(ctx context.Context, eng *engine.Engine, dir string) error {
			sess, err := eng.Open(dir)
			if err != nil {
				return err
			}
			ok, err := eng.ClearHistory(ctx, sess)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("backend did not clear the history for %s", sess.Key())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared history for %s\n", sess.Key())
			return nil
		})
	},
}

func init() {
	historyExportCmd.Flags().StringVarP(&historyOutput, "output", "o", "-", "output file")
	historyCmd.AddCommand(historyExportCmd, historyShowCmd, historyClearCmd)
}

// withSession connects to the backend synchronously and runs fn against a
// started engine. dir defaults to the current directory.
func withSession(ctx context.Context, args []string, fn func(context.Context, *engine.Engine, string) error) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if ctx == nil {
		ctx = context.Background()
	}

	socket, err := cfg.GetSocketPath()
	if err != nil {
		return err
	}
	conn, err := dial(ctx, socket)
	if err != nil {
		return fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}

	link := backend.NewLink(backend.LinkOptions{CallTimeout: cfg.GetCallTimeout()})
	if err := link.Attach(conn); err != nil {
		conn.Close()
		return err
	}

	eng, err := engine.New(cfg, link, engine.Options{})
	if err != nil {
		link.Close()
		return err
	}
	defer eng.Close()
	if err := eng.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, eng, dir)
}
