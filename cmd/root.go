// Package cmd provides the command-line interface for qmd with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. QMD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (QMD_COMPILER_JAR_PATH, etc.)
//	4. Configuration files (.qmd.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/qmd/internal/config"
	"github.com/conneroisu/qmd/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qmd",
	Short: "Quarkdown compiler orchestration and MCP server",
	Long: `qmd drives the Quarkdown compiler: one-shot compiles, static syntax
validation, concurrent batch conversion, live browser previews, and project
scaffolding. The same operations are exposed as MCP tools over stdio.

Quick Start:
  qmd serve                       Serve the tools over MCP stdio
  qmd compile doc.qmd             Compile a document to HTML
  qmd validate doc.qmd            Validate syntax without compiling
  qmd preview doc.qmd             Live preview with reload on save
  qmd batch docs/ -f pdf          Compile a directory concurrently
  qmd init myproject              Scaffold a new project`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .qmd.yml, can also use QMD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
//
// Loading priority (highest to lowest):
//  1. --config flag
//  2. QMD_CONFIG_FILE environment variable
//  3. .qmd.yml in the current directory
//
// All configuration values also bind to environment variables with the
// QMD_ prefix, e.g. QMD_COMPILER_JAR_PATH and QMD_PREVIEW_PORT.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("QMD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".qmd")
	}

	viper.SetEnvPrefix("QMD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file degrades to defaults without
	// failing; explicit validation happens in config.Load.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves configuration and builds the logger commands share.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Logging.Level)
	logCfg.Format = cfg.Logging.Format

	return cfg, logging.NewLogger(logCfg), nil
}
