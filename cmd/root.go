package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dllcheck/internal/config"
	"github.com/mabhi256/dllcheck/internal/observability"
	"github.com/mabhi256/dllcheck/utils"
)

// errValidationFailed ends a run whose report already says "Failed"
var errValidationFailed = errors.New("validation failed")

var configExtensions = []string{".json", ".yaml", ".yml", ".toml"}

var (
	configFile string
	outputFile string
	jobs       int
	verbose    bool
	noColor    bool
	timeout    time.Duration

	logger = observability.NewLogger(os.Stderr, false)
)

var rootCmd = &cobra.Command{
	Use:   "dllcheck [config-file]",
	Short: "Check that every referenced .NET assembly is present",
	Long: `dllcheck scans the directories listed in a config file for managed DLLs,
links every assembly reference it finds and reports what is missing, what failed
to load and which assemblies are deployed more than once.

Without a sub-command it runs a single check. The config file defaults to
dllcheck.json in the current directory.`,
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: utils.CompleteFilesByExtension(configExtensions),
	SilenceUsage:      true,
	SilenceErrors:     true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = observability.NewLogger(cmd.ErrOrStderr(), verbose)
	},
	RunE: runCheck,
}

// Execute runs the command line and exits with 0 on a passed check, 1 otherwise
func Execute() {
	os.Exit(execute())
}

func execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("unexpected error", "panic", r, "stack", string(debug.Stack()))
			code = 1
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errValidationFailed) {
			logger.Error(err.Error())
		}
		return 1
	}
	return 0
}

// configPath picks the positional argument, then --config, then the default file
func configPath(args []string) string {
	switch {
	case len(args) > 0:
		return args[0]
	case configFile != "":
		return configFile
	default:
		return config.DefaultFile
	}
}

func loadConfig(args []string) (*config.Config, error) {
	path := configPath(args)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load config %s: %w", path, err)
	}
	logger.Debug("config loaded", "file", cfg.File, "paths", len(cfg.Paths), "systemPaths", len(cfg.SystemPaths))
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default "+config.DefaultFile+")")
	flags.StringVarP(&outputFormat, "output", "o", formatCLI, "Output format: cli, json or html")
	flags.StringVar(&outputFile, "out-file", "", "Write the report to this file instead of stdout")
	flags.IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Number of modules parsed in parallel")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flags.DurationVar(&timeout, "timeout", 0, "Abort the scan after this long (0 means no limit)")

	rootCmd.MarkPersistentFlagFilename("config", "json", "yaml", "yml", "toml")
	rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return validFormats, cobra.ShellCompDirectiveNoFileComp
	})

}
