package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zhubert/parley/config"
	"github.com/zhubert/parley/logger"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	logFile    string
	socket     string
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "config file (default <config dir>/config.jsonc)")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging and record raw backend lines")
	fs.StringVar(&o.logFile, "log-file", "", "log file (default <state dir>/logs/parley.log)")
	fs.StringVar(&o.socket, "socket", "", "backend socket path (default <state dir>/parley.sock)")
}

var (
	globals globalOptions
	cfg     *config.Config
)

// rootCmd is the base command for parley.
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-session agent transcripts in the terminal",
	Long: `parley renders streamed agent conversations, one session per project
directory, and lets you type the next prompt below a read-only history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Flags())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	globals.addFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(attachCmd, replayCmd, historyCmd, logsCmd, configCmd, doctorCmd)
}

// setup loads the config, applies flag overrides and opens the log.
func setup(fs *pflag.FlagSet) error {
	var err error
	if globals.configPath != "" {
		cfg, err = config.LoadFrom(globals.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if fs.Changed("debug") {
		cfg.SetDebug(globals.debug)
	}
	if globals.socket != "" {
		cfg.SetSocketPath(globals.socket)
	}

	logPath := globals.logFile
	if logPath == "" {
		if logPath, err = logger.DefaultLogPath(); err != nil {
			return err
		}
	}
	if err := logger.Init(logPath); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDebug(cfg.GetDebug())
	return nil
}
