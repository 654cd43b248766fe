package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesession/pkg/config"
)

// configureLogger builds the logger from the config and applies --log-level
// and --verbose on top, with --log-level taking precedence. Logs go to w so
// they never mix with the event stream.
func configureLogger(cmd *cobra.Command, cfg *config.Config, verboseFlagName string, w io.Writer) (*logrus.Logger, error) {
	// --log-level wins over --verbose
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		cfg.LogLevel = logLevelStr
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		cfg.LogLevel = "debug"
	}

	if _, err := cfg.Level(); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	// Create logger with the resolved level
	logger := cfg.NewLogger()
	logger.SetOutput(w)
	return logger, nil
}
