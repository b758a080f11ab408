// explab samples a game window's status bar and serves experience, health
// and mana rates over a local HTTP and WebSocket API.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/explab/explab/internal/config"
)

var (
	configPath string
	logFormat  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "explab",
	Short: "explab - experience, health and mana rate tracker",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), logFormat, logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trackers and the local API server",
	RunE:  runServe,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one frame, recognize every region and print the readings",
	RunE:  runCapture,
}

var saveDir string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file overlaid on the environment (watched for changes)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	captureCmd.Flags().StringVar(&saveDir, "save", "", "directory to write the frame and prepared region crops to")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(captureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}

// loadConfig reads the environment and, when --config is set, overlays the
// YAML file.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Load()
		return cfg, cfg.Validate()
	}
	return config.LoadFile(configPath)
}
