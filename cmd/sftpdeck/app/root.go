// Package app wires the sftpdeck command tree.
package app

import (
	"errors"
	"io"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/sftpdeck/internal/config"
	"gitlab.bluewillows.net/root/sftpdeck/internal/metrics"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/connection"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/dispatch"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/keyfile"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/remote"
	"gitlab.bluewillows.net/root/sftpdeck/pkg/session"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "sftpdeck/skip-config"

// options is the state shared by all subcommands of one invocation.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the sftpdeck command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "sftpdeck",
		Short: "sftpdeck - run commands, list and fetch files over SSH",
		Long: `sftpdeck drives remote hosts described by connection profiles.

Each operation opens a fresh SSH session, authenticates with exactly one
method (private key when the profile has one, password otherwise), performs
the operation and closes the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return o.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "Path to the profiles file (default $SFTPDECK_CONFIG)")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "Log format: text, json")

	cmd.AddCommand(
		newConnectionsCmd(o),
		newTestCmd(o),
		newLsCmd(o),
		newExecCmd(o),
		newGetCmd(o),
		newServeCmd(o),
		newVersionCmd(),
	)

	return cmd
}

// Run executes the root command, this is the entry point called by main.go.
func Run() error {
	return NewRootCommand().Execute()
}

// load reads the configuration and installs the logger.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}

	o.cfg = cfg
	o.logger = setupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(o.logger)

	metrics.SetBuildInfo(version, runtime.Version())

	o.logger.Debug("configuration loaded",
		slog.Int("connections", len(cfg.Connections)),
		slog.Duration("ssh_timeout", cfg.SSHTimeout),
		slog.Int("known_hosts_files", len(cfg.KnownHosts)),
	)

	return nil
}

// connection resolves a profile by name or ID, falling back to the default
// profile when name is empty.
func (o *options) connection(name string) (connection.Connection, error) {
	if name == "" {
		conn, ok := o.cfg.Default()
		if !ok {
			return connection.Connection{}, errors.New("no connection given and no default connection configured")
		}
		return conn, nil
	}
	return o.cfg.Connection(name)
}

// dispatcher builds the session manager and dispatcher from the configuration.
func (o *options) dispatcher() (*dispatch.Dispatcher, error) {
	managerOpts := []session.Option{
		session.WithLogger(o.logger),
		session.WithTimeout(o.cfg.SSHTimeout),
		session.WithMaterializer(keyfile.New(keyfile.WithDir(o.cfg.KeyDir))),
	}

	if len(o.cfg.KnownHosts) > 0 {
		cb, err := session.KnownHostsCallback(o.cfg.KnownHosts...)
		if err != nil {
			return nil, err
		}
		managerOpts = append(managerOpts, session.WithHostKeyCallback(cb))
	}

	manager := session.NewManager(managerOpts...)
	executor := remote.New(remote.WithLogger(o.logger))

	return dispatch.New(manager,
		dispatch.WithLogger(o.logger),
		dispatch.WithExecutor(executor),
	), nil
}

// setupLogger creates a logger with the specified level and format.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// nameArg returns the first positional argument, or "" when there is none.
func nameArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
