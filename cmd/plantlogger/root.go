// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plantlogger/plantlogger/internal/config"
	"github.com/plantlogger/plantlogger/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Plant Logger CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plantlogger",
		Short: "Plant Logger - account and session service",
		Long: `Plant Logger serves registration, login, and the verified
email-change flow for the Plant Logger web client.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/plantlogger/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig merges the config file, environment, and the changed flags
// of flags that appear in flagKeys. Without --config the XDG config file
// is used when present.
func loadConfig(flags *pflag.FlagSet, flagKeys map[string]string) (*config.Config, error) {
	file := configFile
	if file == "" {
		if path, ok := xdg.DefaultConfigFile(); ok {
			file = path
		}
	}
	cfg, err := config.Load(config.Options{
		File:     file,
		Flags:    flags,
		FlagKeys: flagKeys,
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors carry their own codes
	}
	return cfg, nil
}
