package cmd

import (
	"fmt"
	"os"

	"statement-reconciliation/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Vendor statement reconciliation tool",
	Long: `Reconciler matches vendor statement lines against internal ledger
records, tracks disputes, computes variance, and signs statements off.

Examples:
  reconciler recompute 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b
  reconciler variance 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b
  reconciler signoff 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b --actor alice --type full
  reconciler export 6f1c0b2e-6a9e-4f0d-9f57-1c2d3e4f5a6b --output-file report.json
  reconciler serve --addr :8080`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("dsn", "", "MySQL DSN; omit to use the in-memory store")
	rootCmd.PersistentFlags().String("dataset", "", "JSON dataset to seed the in-memory store from")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("dataset", rootCmd.PersistentFlags().Lookup("dataset"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix("RECONCILER")
	viper.AutomaticEnv()

	level := logger.Level(viper.GetString("log-level"))
	if viper.GetBool("verbose") {
		level = logger.DebugLevel
	}
	logCfg := &logger.Config{
		Level:  level,
		Format: logger.Format(viper.GetString("log-format")),
	}
	if log, err := logger.NewLogger(logCfg); err == nil {
		logger.SetGlobalLogger(log)
	}
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
