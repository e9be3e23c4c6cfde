package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AmmannChristian/go-oauthhttp/config"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const envConfig = "OAUTHHTTP_CONFIG"

var longHelp = strings.TrimSpace(`
oauthhttp sends single HTTP requests the way an OAuth service does: fully
buffered, one connection per call, explicit redirect limits. It can also
fetch client credentials tokens and validate access tokens by introspection
or against a JWKS.

Settings are read from a YAML or TOML file given with --config or the
OAUTHHTTP_CONFIG environment variable. Flags override the file.
`)

// rootOptions holds the persistent flags and the state derived from them.
type rootOptions struct {
	configPath string
	verbose    bool
	noColor    bool
	jsonOutput bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCommand builds the oauthhttp command tree writing to stdout and stderr.
func NewRootCommand(version string, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{cfg: &config.Config{}, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "oauthhttp",
		Short:         "OAuth-aware HTTP requests from the command line",
		Long:          longHelp,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: ExitUsageError, err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or TOML config file (env "+envConfig+")")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log request details to stderr")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newFetchCommand(opts),
		newTokenCommand(opts),
		newIntrospectCommand(opts),
		newVerifyCommand(opts),
	)

	return root
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	if o.noColor {
		color.NoColor = true
	}

	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        cmd.ErrOrStderr(),
		TimeFormat: time.RFC3339,
		NoColor:    color.NoColor,
	}
	o.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()

	path := o.configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path == "" {
		return nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return configError(err)
	}
	o.cfg = cfg
	o.logger.Debug().Str("path", path).Msg("configuration loaded")

	return nil
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, NewRootCommand(version, os.Stdout, os.Stderr))
}

func run(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return exitCode(err)
}
