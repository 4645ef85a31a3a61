// Package cli implements the nodeflow command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/eventlog"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/kinds"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// settings are the values shared by every command, resolved from flags,
// NODEFLOW_* environment variables and the config file, in that order.
type settings struct {
	Verbose      bool   `mapstructure:"verbose"`
	Format       string `mapstructure:"format"`
	LogFormat    string `mapstructure:"log_format"`
	EventLog     string `mapstructure:"event_log"`
	Session      string `mapstructure:"session"`
	Trace        bool   `mapstructure:"trace"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Metrics      bool   `mapstructure:"metrics"`
}

// app carries state from the root command to its subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     settings
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "nodeflow",
		Short:         "Replay and inspect node graph update sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "",
		"config file (default: ./.nodeflow.yaml or ~/.config/nodeflow/config.yaml)")
	flags.BoolP("verbose", "v", false, "log every classified event and pass")
	flags.String("format", formatText, "report format: text or json")
	flags.String("log-format", "text", "log format on stderr: text or json")
	flags.String("event-log", "", "SQLite file to persist the event log in")
	flags.String("session", "", "event log session id (default: random)")
	flags.Bool("trace", false, "print OpenTelemetry spans to stderr")
	flags.String("otlp-endpoint", "", "export spans to an OTLP gRPC collector")
	flags.Bool("metrics", false, "print OpenTelemetry metrics after the run")

	for _, name := range []string{"verbose", "format", "log-format", "event-log", "session", "trace", "otlp-endpoint", "metrics"} {
		_ = a.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	root.AddCommand(
		newRunCommand(a),
		newWatchCommand(a),
		newEventsCommand(a),
		newKindsCommand(a),
	)
	return root
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// SetVersion sets the version string reported by --version.
func SetVersion(v string) {
	version = v
}

func (a *app) load() error {
	a.v.SetEnvPrefix("NODEFLOW")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if _, err := os.Stat(".nodeflow.yaml"); err == nil {
		a.v.SetConfigFile(".nodeflow.yaml")
	} else {
		home, _ := os.UserHomeDir()
		a.v.AddConfigPath(filepath.Join(home, ".config", "nodeflow"))
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (a *app) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if a.cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if a.cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// session is an engine plus the resources opened for it.
type session struct {
	engine    *nodeflow.Engine
	store     eventlog.Store
	telemetry *telemetry
}

// openSession builds an engine with the demo kinds registered and the
// configured event store and telemetry.
func (a *app) openSession(cmd *cobra.Command, scene kinds.Scene) (*session, error) {
	ctx := cmd.Context()
	tel, err := setupTelemetry(ctx, a.cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	s := &session{telemetry: tel}
	opts := []nodeflow.Option{
		nodeflow.WithLogger(a.logger(cmd.ErrOrStderr())),
		nodeflow.WithVerbose(a.cfg.Verbose),
		nodeflow.WithMetrics(a.cfg.Metrics),
		nodeflow.WithTracing(tel.tracing()),
	}
	if a.cfg.Session != "" {
		opts = append(opts, nodeflow.WithSessionID(a.cfg.Session))
	}
	if a.cfg.EventLog != "" {
		store, err := eventlog.NewSQLiteStore(a.cfg.EventLog)
		if err != nil {
			_ = tel.shutdown(ctx)
			return nil, fmt.Errorf("open event log: %w", err)
		}
		s.store = store
		opts = append(opts, nodeflow.WithEventStore(store))
	}

	s.engine = nodeflow.NewEngine(opts...)
	var kindOpts []kinds.Option
	if scene != nil {
		kindOpts = append(kindOpts, kinds.WithScene(scene))
	}
	if err := kinds.Register(s.engine, kindOpts...); err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	errs = append(errs, s.telemetry.shutdown(ctx))
	return errors.Join(errs...)
}
