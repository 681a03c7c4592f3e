package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"heiconv/internal/logger"
)

var (
	rootVerbose bool
	rootLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "heiconv",
	Short: "heiconv 📸 - batch-convert HEIC photo libraries to JPEG",
	Long:  "heiconv 📸 converts folders of HEIC/HEIF images to JPEG in parallel, preserving EXIF metadata and folder structure.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A .env beside the binary can override the flag defaults.
		_ = godotenv.Load()

		cfg := logger.DefaultConfig()
		if rootVerbose {
			cfg.Level = slog.LevelDebug
		}
		if rootLogJSON {
			cfg.Format = "json"
		}
		logger.New(cfg)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&rootLogJSON, "log-json", false, "emit logs as JSON")
}

// envInt reads an integer override from the environment, falling back
// to def when unset or malformed.
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
