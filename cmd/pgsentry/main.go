// Package main is the entry point for pgsentry, the PostgreSQL monitoring
// and operations backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pgsentry/internal/banner"
	"pgsentry/internal/config"
)

const defaultConfigPath = "config/config.yaml"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "pgsentry",
		Short:         "Operate and monitor PostgreSQL targets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification worker",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Load settings and the catalog, then report any errors",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}

	tokenUserID int64
	tokenTTL    string

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for a user id",
		Args:  cobra.NoArgs,
		RunE:  runToken,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			banner.Print(cmd.OutOrStdout())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig(), "path to the settings file (env "+config.EnvConfigPath+")")

	tokenCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "user id to put in the token")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "24h", "token lifetime; 0 for no expiry")
	_ = tokenCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(serveCmd, validateCmd, tokenCmd, versionCmd)
}

func defaultConfig() string {
	if path := os.Getenv(config.EnvConfigPath); path != "" {
		return path
	}
	return defaultConfigPath
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
