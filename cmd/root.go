// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/config"
	"github.com/xkilldash9x/operant/internal/observability"
)

var (
	cfgFile string
	// loaded is the configuration built by PersistentPreRunE; subcommands
	// read it through loadedConfig.
	loaded *config.Config
)

// rootFlagBindings maps configuration keys onto the root persistent flags
// that may override them. Bound flags only take precedence when set.
var rootFlagBindings = map[string]string{
	"browser.headless":    "headless",
	"logger.level":        "log-level",
	"screenshot.mode":     "screenshot-mode",
	"search.resilient":    "resilient-search",
	"search.engine":       "search-engine",
	"search.humanlike":    "humanlike-search",
	"search.language":     "search-language",
	"search.region":       "search-region",
	"search.safe":         "search-safe",
	"search.time_period":  "search-time-period",
	"search.content_type": "search-content-type",
	"search.site":         "search-site",
	"search.result_count": "search-result-count",
}

// NewRootCommand builds the operant command tree. Each call returns a fresh
// instance so flag state never leaks between executions.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "operant",
		Short:         "Operant drives a real browser with a computer-use model.",
		Long: `Operant runs an autonomous computer-use agent against a live Chrome
instance: tasks become model turns, model actions become browser input, and
every observation flows back as a screenshot. It also exposes the same agent
and its resilient multi-engine search over the Model Context Protocol.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeViper(); err != nil {
				return err
			}
			if err := bindRootFlags(cmd); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// A fallback logger keeps the failure visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "INFO", Format: "console", ServiceName: "operant"})
				return err
			}
			loaded = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting operant.", zap.String("version", Version))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./operant.yaml or ~/.operant/operant.yaml)")
	flags.Bool("headless", false, "run the browser without a visible window")
	flags.String("log-level", "", "log verbosity: NONE, ERROR, INFO, ACTION, DEBUG, ALL")
	flags.String("screenshot-mode", "", "post-action captures: none, search, all")
	flags.Bool("resilient-search", true, "fall back across engines when one fails")
	flags.String("search-engine", "", "preferred engine: auto, google, bing, duckduckgo, yahoo")
	flags.Bool("humanlike-search", false, "drive searches through the engine's own search box")
	flags.String("search-language", "", "two-letter interface language code")
	flags.String("search-region", "", "two-letter region code")
	flags.Bool("search-safe", true, "filter explicit results")
	flags.String("search-time-period", "", "restrict results to day, week, month, or year")
	flags.String("search-content-type", "", "result vertical: web, news, images, videos, shopping")
	flags.String("search-site", "", "restrict results to one site")
	flags.Int("search-result-count", 0, "maximum organic results per search")

	rootCmd.SetVersionTemplate("operant version {{.Version}}\n")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree under a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
		return err
	}
	return nil
}

// loadedConfig returns the configuration built during PersistentPreRunE.
func loadedConfig() *config.Config {
	if loaded == nil {
		return config.NewDefaultConfig()
	}
	return loaded
}

// initializeViper attaches defaults, the config file, and OPERANT_* env
// bindings to the global viper instance.
func initializeViper() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("operant")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".operant"))
		}
	}

	v.SetEnvPrefix("OPERANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults, env, and flags carry the run.
	}
	return nil
}

// bindRootFlags binds the persistent option surface onto viper so set flags
// override file and environment values.
func bindRootFlags(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	for key, flag := range rootFlagBindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}
