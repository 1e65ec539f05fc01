// hivebrain is the communal memory daemon: one process per device,
// all devices sharing a single logical brain.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hivebrain/internal/config"
	"hivebrain/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hivebrain",
	Short: "hivebrain - communal memory for a fleet of conversational agents",
	Long: `hivebrain runs the shared memory substrate for a fleet of
conversational agents: one process per device, every device reading
and writing the same logical brain.

Memories and knowledge are stored with vector embeddings and retrieved
by similarity; conversations are tracked per session and compressed by
a background summarizer once they grow too large or too old.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logging.SetBase(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// buildLogger assembles the process logger: console output plus the
// persistent newest-first activity log when one is configured.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(lc.Level); err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var encCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if lc.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if lc.ActivityLogPath != "" {
		retention, err := logging.NewRetentionLog(lc.ActivityLogPath, lc.MaxLines, lc.MaxAgeDays)
		if err != nil {
			return nil, fmt.Errorf("opening activity log: %w", err)
		}
		activityEnc := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(activityEnc, zapcore.AddSync(retention), zapcore.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(devicesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
