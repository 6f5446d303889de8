// Package doctor checks that the local environment can run parley: the
// config parses, tool profiles load, logs are writable and the backend
// socket answers.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/paths"
)

// DialTimeout bounds the backend socket probe.
const DialTimeout = 2 * time.Second

// Check is one environment probe.
type Check struct {
	Name     string
	Required bool // Whether parley cannot work without it
	Hint     string
	Run      func(ctx context.Context) (detail string, err error)
}

// Result is the outcome of one Check.
type Result struct {
	Check  Check
	OK     bool
	Detail string
	Err    error
}

// DefaultChecks returns the probes for cfg. The backend socket is optional:
// parley holds the latest request until the backend comes up.
func DefaultChecks(cfg *config.Config) []Check {
	return []Check{
		{
			Name:     "config",
			Required: true,
			Hint:     "fix or remove the config file",
			Run: func(context.Context) (string, error) {
				if err := cfg.Validate(); err != nil {
					return "", err
				}
				return cfg.FilePath(), nil
			},
		},
		{
			Name:     "tool profiles",
			Required: true,
			Hint:     "check the tools.yaml syntax",
			Run: func(context.Context) (string, error) {
				path, err := cfg.GetToolProfilesPath()
				if err != nil {
					return "", err
				}
				profiles, err := config.LoadToolProfiles(path)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d tools", len(profiles)), nil
			},
		},
		{
			Name:     "logs",
			Required: true,
			Hint:     "make the state directory writable",
			Run: func(context.Context) (string, error) {
				dir, err := paths.LogsDir()
				if err != nil {
					return "", err
				}
				return dir, writable(dir)
			},
		},
		{
			Name: "backend",
			Hint: "start the backend or pass --socket",
			Run: func(ctx context.Context) (string, error) {
				socket, err := cfg.GetSocketPath()
				if err != nil {
					return "", err
				}
				return socket, probeSocket(ctx, socket)
			},
		},
	}
}

// writable reports whether files can be created in dir, creating it if needed.
func writable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func probeSocket(ctx context.Context, socket string) error {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return fmt.Errorf("not reachable: %w", err)
	}
	return conn.Close()
}

// Run executes every check in order.
func Run(ctx context.Context, checks []Check) []Result {
	results := make([]Result, len(checks))
	for i, c := range checks {
		detail, err := c.Run(ctx)
		results[i] = Result{Check: c, OK: err == nil, Detail: detail, Err: err}
	}
	return results
}

// ValidateRequired returns an error listing every failed required check, or
// nil when all of them passed.
func ValidateRequired(results []Result) error {
	var missing []string
	for _, r := range results {
		if r.OK || !r.Check.Required {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s: %v\n    %s", r.Check.Name, r.Err, r.Check.Hint))
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment checks failed:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// Format renders results for display.
func Format(results []Result) string {
	var sb strings.Builder

	sb.WriteString("Environment:\n")
	for _, r := range results {
		status := "✓"
		if !r.OK {
			if r.Check.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Check.Name)
		switch {
		case r.OK && r.Detail != "":
			fmt.Fprintf(&sb, " (%s)", r.Detail)
		case !r.OK && r.Check.Required:
			fmt.Fprintf(&sb, " [REQUIRED] %v", r.Err)
		case !r.OK:
			fmt.Fprintf(&sb, " [optional] %v", r.Err)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
