package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/takumin/iqdb/internal/config"
	"github.com/takumin/iqdb/internal/server"
)

const version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "iqdb",
	Short:   "Content-based image similarity search service",
	Long:    `iqdb indexes perceptual image fingerprints and serves similarity queries over HTTP.`,
	Version: version,
}

var httpCmd = &cobra.Command{
	Use:   "http [host] [port] [dbfile]",
	Short: "Start the HTTP server",
	Args:  cobra.MaximumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		// Positional arguments override the configured values.
		if len(args) > 0 {
			cfg.Server.Host = args[0]
		}
		if len(args) > 1 {
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[1], err)
			}
			cfg.Server.Port = port
		}
		if len(args) > 2 {
			cfg.Database.Driver = "sqlite"
			cfg.Database.Path = args[2]
		}

		return server.Run(cfg, version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.AddCommand(httpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
