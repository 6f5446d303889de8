package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zhubert/parley/backend"
	"github.com/zhubert/parley/engine"
	"github.com/zhubert/parley/logger"
	"github.com/zhubert/parley/tui"
)

// dialInterval is how often attach retries an unreachable backend.
const dialInterval = 500 * time.Millisecond

var attachCmd = &cobra.Command{
	Use:   "attach [project-dir]",
	Short: "Open a project's session and talk to the backend",
	Long: `Open the session for a project directory (default: the current directory)
and connect to the backend socket. Until the backend is reachable, the most
recent request is held and sent once the connection is made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		link, closeLog, err := newLink()
		if err != nil {
			return err
		}
		defer closeLog()

		eng, err := engine.New(cfg, link, engine.Options{})
		if err != nil {
			link.Close()
			return err
		}
		defer eng.Close()
		if err := eng.Start(ctx); err != nil {
			return err
		}

		socket, err := cfg.GetSocketPath()
		if err != nil {
			return err
		}
		go dialUntilAttached(ctx, link, socket)

		sess, err := eng.Open(dir)
		if err != nil {
			return err
		}
		return tui.Run(eng, sess)
	},
}

// newLink creates the backend link. In debug mode raw inbound lines are
// recorded to a per-run stream log.
func newLink() (*backend.Link, func(), error) {
	opts := backend.LinkOptions{CallTimeout: cfg.GetCallTimeout()}
	closeLog := func() {}

	if cfg.GetDebug() {
		path, err := logger.StreamLogPath(uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open stream log: %w", err)
		}
		opts.StreamLog = f
		closeLog = func() { f.Close() }
		logger.Get().Debug("recording backend stream", "path", path)
	}
	return backend.NewLink(opts), closeLog, nil
}

// dial connects to the backend socket.
func dial(ctx context.Context, socket string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socket)
}

// dialUntilAttached retries the backend socket until it connects or ctx ends.
func dialUntilAttached(ctx context.Context, link *backend.Link, socket string) {
	log := logger.WithComponent("attach")
	ticker := time.NewTicker(dialInterval)
	defer ticker.Stop()

	warned := false
	for {
		conn, err := dial(ctx, socket)
		if err == nil {
			if err := link.Attach(conn); err != nil {
				conn.Close()
				log.Warn("attach failed", "error", err)
			}
			return
		}
		if !warned {
			log.Info("backend not reachable yet, retrying", "socket", socket, "error", err)
			warned = true
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
