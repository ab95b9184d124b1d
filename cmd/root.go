// Package cmd provides the vellum command-line interface.
//
// Configuration is resolved from three sources, highest priority first:
//
//  1. Command-line flags (--config, --port, ...)
//  2. Environment variables with the VELLUM_ prefix
//     (VELLUM_SERVER_PORT, VELLUM_APPS_ROOT, ...)
//  3. A YAML config file: the --config flag, the VELLUM_CONFIG_FILE
//     environment variable, or .vellum.yml in the current directory
//
// A missing config file is not an error; defaults apply.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vellum",
	Short: "App-aware template preview with asset links and context payloads",
	Long: `Vellum serves a project of per-app page templates with their inheritance
chains resolved, their CSS and JS link sets built in ancestor-first order,
and server-side context values delivered to the browser.

Quick Start:
  vellum serve                    Start the preview server
  vellum assets shop/index.html   Show the resolved link set for a template
  vellum doctor                   Check the project layout for problems

Project layout (defaults):
  apps/<app>/templates/*.html     page templates
  apps/<app>/styles/<name>.css    stylesheet per template base name
  apps/<app>/scripts/<name>.js    script per template base name`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .vellum.yml, can also use VELLUM_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires viper to the config sources. The --config flag wins over
// VELLUM_CONFIG_FILE, which wins over .vellum.yml in the working directory.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("VELLUM_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vellum")
	}

	viper.SetEnvPrefix("VELLUM")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed file falls through to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
