// Package commands implements the cdrip command-line front end.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cdrip/internal/config"
	"cdrip/internal/shared"
)

// Version is the cdrip release version.
const Version = "1.0.0"

var (
	flagConfig string
	flagDevice string
	flagDebug  bool
	flagAuto   bool
)

var rootCmd = &cobra.Command{
	Use:     "cdrip",
	Short:   "Rip audio CDs to tagged FLAC files",
	Long:    "cdrip reads audio CDs, aggregates metadata from MusicBrainz and CDDB servers,\nfetches cover art and encodes tagged FLAC files.",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		shared.InitializeColors()
		shared.SetDebug(flagDebug)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to the cdrip INI config file")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "CD drive device path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagAuto, "auto", false, "non-interactive: select the first candidate")

	rootCmd.AddCommand(ripCmd)
	rootCmd.AddCommand(retagCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cdrip", "cdrip.conf")
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDevice != "" {
		cfg.Device = flagDevice
	}
	if flagAuto {
		cfg.Auto = true
	}
	shared.DebugLog("config: %s", cfg)
	return cfg, nil
}

// Execute runs the CLI; any fatal error exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		shared.ColorError.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
