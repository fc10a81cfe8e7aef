package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/shadowscore/internal/model"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shadowscore",
	Short: "Shadowscore - score audit personas against published contest findings",
	Long: `Shadowscore compares the findings an audit persona produced on a contest
with the findings the contest actually published.

It normalizes both sides onto a closed vulnerability taxonomy, pairs them
with a maximum-weight one-to-one matching, grades each pair as exact or
partial, and derives precision, recall and F1. Every scored run is appended
to a hash-chained performance ledger so persona accuracy can be tracked
over time.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(verbose || viper.GetBool("output.verbose"))
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of shadowscore.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shadowscore v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.shadowscore/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".shadowscore"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults()

	// Read in environment variables that match SHADOWSCORE_* (similarity.backend -> SHADOWSCORE_SIMILARITY_BACKEND)
	viper.SetEnvPrefix("SHADOWSCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets and endpoints also honor the names their services document
	_ = viper.BindEnv("similarity.api_key", "SHADOWSCORE_SIMILARITY_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("similarity.base_url", "SHADOWSCORE_SIMILARITY_BASE_URL", "OLLAMA_BASE_URL")
	_ = viper.BindEnv("similarity.http_proxy", "SHADOWSCORE_SIMILARITY_HTTP_PROXY", "HTTP_PROXY")
	_ = viper.BindEnv("similarity.https_proxy", "SHADOWSCORE_SIMILARITY_HTTPS_PROXY", "HTTPS_PROXY")
	_ = viper.BindEnv("ledger.redis_url", "SHADOWSCORE_LEDGER_REDIS_URL", "REDIS_URL")

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every DefaultConfig key so env vars can override nested settings
func setDefaults() {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var defaults map[string]any
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

// loadConfig resolves the effective configuration: flags > env > file > defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// setupLogger installs a text slog handler on stderr
func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
