package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/specialistvlad/esxigrid/internal/app"
	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// Exit codes returned through ExitError.
const (
	ExitRunFailed     = 1
	ExitInvalidConfig = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// options holds the raw flag values before they are merged into app.Config.
type options struct {
	configFile      string
	files           []string
	stateDriver     string
	stateDSN        string
	provider        string
	esxiHost        string
	esxiPort        int
	esxiUsername    string
	insecure        bool
	workers         int
	callTimeout     time.Duration
	logLevel        string
	logFormat       string
	healthcheckPort int

	getenv func(string) string
}

// Execute runs the esxigrid command tree with args. Reports go to outW and
// logs to errW. Failures come back as *ExitError.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	return execute(ctx, NewRootCommand(os.Getenv), args, outW, errW)
}

func execute(ctx context.Context, root *cobra.Command, args []string, outW, errW io.Writer) error {
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(errW)
	if err := root.ExecuteContext(ctx); err != nil {
		return toExitError(err)
	}
	return nil
}

// NewRootCommand builds the command tree. getenv supplies the ESXI_*
// connection fallbacks.
func NewRootCommand(getenv func(string) string) *cobra.Command {
	opts := &options{getenv: getenv}
	defaults := app.DefaultConfig()

	root := &cobra.Command{
		Use:           "esxigrid",
		Short:         "Declarative resource management for standalone ESXi hosts",
		Long:          "esxigrid reads HCL resource declarations and converges an ESXi host on them: resource pools, virtual switches, port groups, virtual disks and virtual machines.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitInvalidConfig, Message: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML settings file")
	pf.StringSliceVarP(&opts.files, "file", "f", nil, "HCL file or directory (repeatable)")
	pf.StringVar(&opts.stateDriver, "state-driver", defaults.State.Driver, "State backend: 'sqlite' or 'postgres'")
	pf.StringVar(&opts.stateDSN, "state-dsn", defaults.State.DSN, "State database DSN or SQLite path")
	pf.StringVar(&opts.provider, "provider", defaults.Provider.Type, "Backend: 'vsphere' or 'memory'")
	pf.StringVar(&opts.esxiHost, "esxi-host", "", "ESXi host name or address (env ESXI_HOST)")
	pf.IntVar(&opts.esxiPort, "esxi-port", defaults.Provider.Port, "ESXi HTTPS port (env ESXI_SSL_PORT)")
	pf.StringVar(&opts.esxiUsername, "esxi-username", "", "ESXi user (env ESXI_USERNAME); the password is read from ESXI_PASSWORD")
	pf.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	pf.IntVar(&opts.workers, "workers", defaults.Workers, "Number of resources handled concurrently")
	pf.DurationVar(&opts.callTimeout, "call-timeout", defaults.CallTimeout, "Timeout for a single provider call")
	pf.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health, metrics and graph server. 0 is disabled.")

	root.AddCommand(
		newUpCommand(opts),
		newPreviewCommand(opts),
		newDestroyCommand(opts),
		newRefreshCommand(opts),
		newGraphCommand(opts),
		newStateCommand(opts),
		newVersionCommand(),
	)
	return root
}

// resolveConfig layers explicitly set flags and positional config paths
// over the settings file. The environment only fills connection fields that
// are still empty.
func resolveConfig(cmd *cobra.Command, opts *options, args []string) (*app.Config, error) {
	cfg, err := app.LoadFile(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	if changed("file") {
		cfg.ConfigPaths = opts.files
	}
	if len(args) > 0 {
		cfg.ConfigPaths = append(cfg.ConfigPaths, args...)
	}
	if changed("state-driver") {
		cfg.State.Driver = opts.stateDriver
	}
	if changed("state-dsn") {
		cfg.State.DSN = opts.stateDSN
	}
	if changed("provider") {
		cfg.Provider.Type = opts.provider
	}
	if changed("esxi-host") {
		cfg.Provider.Host = opts.esxiHost
	}
	if changed("esxi-port") {
		cfg.Provider.Port = opts.esxiPort
	}
	if changed("esxi-username") {
		cfg.Provider.Username = opts.esxiUsername
	}
	if changed("insecure") {
		cfg.Provider.Insecure = opts.insecure
	}
	if changed("workers") {
		cfg.Workers = opts.workers
	}
	if changed("call-timeout") {
		cfg.CallTimeout = opts.callTimeout
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if changed("healthcheck-port") {
		cfg.HealthcheckPort = opts.healthcheckPort
	}

	if opts.getenv != nil {
		if err := cfg.ApplyEnv(opts.getenv); err != nil {
			return nil, err
		}
	}
	return app.NewConfig(cfg)
}

// withApp builds the App for one command and releases it afterwards.
func withApp(cmd *cobra.Command, opts *options, args []string, fn func(context.Context, *app.App) error) (err error) {
	cfg, err := resolveConfig(cmd, opts, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.NewApp(ctx, cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	a.StartHealthCheckServer(ctx)
	return fn(a.Context(ctx), a)
}

// toExitError maps errors onto process exit codes.
func toExitError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var cfgErr *engine.ConfigurationError
	if errors.Is(err, app.ErrInvalidConfig) || errors.As(err, &cfgErr) {
		return &ExitError{Code: ExitInvalidConfig, Message: err.Error()}
	}
	return &ExitError{Code: ExitRunFailed, Message: err.Error()}
}
