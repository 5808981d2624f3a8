// Package cli implements the icecat command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/icecat/internal/paths"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// app carries global flag values and the state PersistentPreRunE builds
// for subcommands.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	output    string

	flags  *pflag.FlagSet
	cfg    *viper.Viper
	logger *slog.Logger
	out    io.Writer
}

// NewRootCmd creates the top-level "icecat" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "icecat",
		Short: "A table catalog client",
		Long: "icecat maps table identifiers to metadata files and commits new\n" +
			"table versions by swapping a metadata pointer in a catalog service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/"+paths.DefaultDataDirName+")")
	pf.BoolVar(&a.jsonMode, "json", false, "output as JSON (same as --output json)")
	pf.StringVarP(&a.output, "output", "o", outputText, "output format: text, json, yaml")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	a.flags = pf

	root.AddCommand(newVersionCmd(a))
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newNamespaceCmd(a))
	root.AddCommand(newTableCmd(a))
	root.AddCommand(newServeCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "icecat:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode classifies err: problems with the user's input or with the
// state of the catalog exit 1, everything else 2.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrMalformedIdentifier),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrAlreadyExists),
		errors.Is(err, types.ErrConcurrentModification),
		errors.Is(err, types.ErrInvalidConfig),
		errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrInvalidLocation),
		errors.Is(err, types.ErrInvalidUpdate),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}

// errUsage marks bad command-line input that cobra's validators miss.
var errUsage = errors.New("usage")

// setup resolves the config directory, loads config.yaml, and configures
// the logger.
func (a *app) setup() error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	mustBindPFlag(cfg, cfgKeyLogLevel, a.flags.Lookup("log-level"))
	mustBindPFlag(cfg, cfgKeyLogFormat, a.flags.Lookup("log-format"))
	a.cfg = cfg

	logger, err := newLogger(os.Stderr, cfg.GetString(cfgKeyLogLevel), cfg.GetString(cfgKeyLogFormat))
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	a.logger = logger
	return nil
}

// resolveDataDir applies --data-dir > config.yaml data_dir > ICECAT_DATA_DIR > default.
func (a *app) resolveDataDir() (string, error) {
	return paths.ResolveDataDir(a.dataDir, a.cfg.GetString(cfgKeyDataDir))
}

// format returns the effective output format.
func (a *app) format() string {
	if a.jsonMode {
		return outputJSON
	}
	return strings.ToLower(a.output)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %q (expected debug, info, warn, error)", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %q (expected text, json)", format)
	}
	return slog.New(handler), nil
}

func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("viper.BindPFlag(%q): %v", key, err))
	}
}
