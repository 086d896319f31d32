// Package cmd holds the psctl commands: offline helpers for operating a
// partner-sso deployment.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/partner-sso/config"
	"github.com/pilab-dev/partner-sso/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const appName = "psctl"

var (
	envFile   string
	logLevel  string
	appLogger log.Logger
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "psctl operates a partner-sso deployment",
	Long:          `A command-line tool for inspecting Partner success URLs, signing keys, LTI initiation and sessions of a partner-sso deployment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		appLogger = log.Setup(logLevel, true)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if appLogger != nil {
			appLogger.Error(context.Background(), "psctl failed", err)
		} else {
			fmt.Fprintln(os.Stderr, "psctl failed:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(parseURLCmd, jwksCmd, launchURLCmd, verifyCmd, sessionCmd)
}

func loadConfig() (*config.ServerConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
