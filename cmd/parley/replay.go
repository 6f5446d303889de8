package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/zhubert/parley/backend"
	"github.com/zhubert/parley/engine"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/manager"
	"github.com/zhubert/parley/session"
	"github.com/zhubert/parley/tui"
)

var replayNoColor bool

var replayCmd = &cobra.Command{
	Use:   "replay <stream.log>",
	Short: "Render a recorded backend stream",
	Long: `Render a JSON-lines backend stream, such as a stream-*.log recorded with
--debug, and print the resulting transcript of every session it mentions.
Use - to read standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		profile := termenv.NewOutput(os.Stdout).EnvColorProfile()
		if replayNoColor {
			profile = termenv.Ascii
		}
		renderer := lipgloss.NewRenderer(cmd.OutOrStdout(), termenv.WithProfile(profile))
		renderer.SetColorProfile(profile)

		return replay(r, cmd.OutOrStdout(), tui.NewStyles(tui.DefaultTheme, renderer))
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayNoColor, "no-color", false, "disable colors")
}

// replay feeds every event in r to a session of its own and prints each
// session's transcript, sorted by key.
func replay(r io.Reader, w io.Writer, styles tui.Styles) error {
	log := logger.WithComponent("replay")

	opts, err := engine.SessionOptions(cfg, nil)
	if err != nil {
		return err
	}
	reg := manager.NewSessionRegistry(func(key string) *session.Session {
		return session.New(key, opts)
	})
	defer reg.Shutdown()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		msg, err := backend.ParseLine(scanner.Text())
		if err != nil {
			log.Warn("skipping malformed line", "error", err)
			continue
		}
		if msg == nil {
			continue
		}
		for _, ev := range msg.ToEvents(log) {
			sess, err := reg.Resolve(ev.SessionKey(), manager.ResolveOptions{CreateIfMissing: true})
			if err != nil {
				log.Warn("skipping event", "session", ev.SessionKey(), "error", err)
				continue
			}
			sess.Apply(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for i, key := range reg.Keys() {
		sess, _ := reg.Get(key)
		snap := sess.Snapshot()
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "── %s", key)
		if snap.ChatFiles != "" {
			fmt.Fprintf(w, "  %s", snap.ChatFiles)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, tui.RenderSegments(styles, snap.Segments, -1))
	}
	return nil
}
