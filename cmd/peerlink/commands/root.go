package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel string
	logJSON  bool
	logger   *zap.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:          "peerlink",
		Short:        "Peer-to-peer connection establishment with proxied introductions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel, logJSON)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")

	root.AddCommand(keygenCmd(), demoCmd())
	return root.Execute()
}

func newLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	if json {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}
