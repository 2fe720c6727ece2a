// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litflow CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litflow/internal/logging"
	"github.com/pdiddy/litflow/internal/secrets"
	"github.com/pdiddy/litflow/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the loaded configuration with secrets applied.
	cfg types.Config

	logger *slog.Logger
)

// rootCmd is the base command for the litflow CLI.
var rootCmd = &cobra.Command{
	Use:   "litflow",
	Short: "Concurrent literature retrieval with live progress",
	Long: `litflow searches bibliographic APIs (PubMed, Embase, OpenAlex, Semantic
Scholar, arXiv) for a research question. In multi mode the question is split
into search directions that run concurrently; each record can be summarized by
a language model. Progress streams to the terminal, an SSE endpoint, or NATS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		dir, _ := cmd.Flags().GetString("secrets")
		envFile, _ := cmd.Flags().GetString("env-file")
		s, err := loadSecrets(dir, envFile)
		if err != nil {
			return err
		}
		secrets.Apply(&loaded, s)

		cfg = loaded
		logger = logging.New(cfg.Log, os.Stderr)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./litflow.yaml or ~/.config/litflow/litflow.yaml)")
	rootCmd.PersistentFlags().String("secrets", ".secrets/", "directory of secret key files")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with secret keys")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litflow"))
		}
	}

	viper.SetEnvPrefix("LITFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadSecrets merges the secrets directory with the dotenv file and reports
// which keys were found.
func loadSecrets(dir, envFile string) (map[string]string, error) {
	fromDir, err := secrets.Load(dir)
	if err != nil {
		return nil, err
	}
	fromEnv, err := secrets.LoadEnv(envFile)
	if err != nil {
		return nil, err
	}
	s := secrets.Merge(fromDir, fromEnv)
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
	}
	return s, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
