// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the zapdav command line.
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/debug"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "zapdav",
	Short: "zapdav - a WebDAV, S3, Azure and GCloud client",
	Long: `zapdav talks to HTTP, WebDAV, S3, Azure Blob, Google Cloud Storage and
Swift endpoints through one set of file operations: stat, list, delete,
mkdir, move, checksum, upload, download and copy.`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	pf.String("debug_addr", "", "Serve metrics and pprof on this address while the command runs (e.g. localhost:8010)")
	pf.String("log_level", "", "Log level (trace, debug, info, warn, error)")
	pf.String("log_scopes", "", "Comma separated log scopes (http,xml,s3,azure,gcloud,swift,redirect,pool,chain,copy or all)")

	addRequestFlags(pf)

	viper.BindPFlags(pf)
}

// initialize loads the configuration file, applies logging flags and starts
// the optional debug server for the lifetime of the command.
func initialize(cmd *cobra.Command, args []string) error {
	utils.LoadConfiguration("zapdav", false)
	f := NewFlagLoader(cmd)

	if lvl := f.String("log_level"); lvl != "" {
		level, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	if scopes := f.String("log_scopes"); scopes != "" {
		logger.SetScopes(logger.ParseScopes(scopes))
	}

	if addr := f.String("debug_addr"); addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		cmd.SetContext(ctx)
		cobra.OnFinalize(cancel)
		go func() {
			if err := debug.Serve(ctx, addr); err != nil {
				logger.Warn().Err(err).Str("addr", addr).Msg("debug server stopped")
			}
		}()
	}
	return nil
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
