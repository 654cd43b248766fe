package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/pkg/config"
	"github.com/srg/blesession/pkg/session"
	"golang.org/x/term"
)

const shutdownTimeout = 5 * time.Second

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <device-id> [device-id...]",
	Short: "Connect to Polar devices and print session events",
	Long: `Connects to each device and keeps the sessions alive until interrupted.
Every lifecycle change, feature readiness and data event is printed to stdout;
logs go to stderr.

On macOS the device id is the CoreBluetooth peripheral UUID, on Linux the
Bluetooth MAC address.

Examples:
  # Follow a single H10 strap
  blesession connect A0:9E:1A:12:34:56

  # Two devices, ECG only, JSON lines for another program
  blesession connect A0:9E:1A:12:34:56 A0:9E:1A:65:43:21 --stream ecg --format json

  # Give up after the first link loss
  blesession connect A0:9E:1A:12:34:56 --no-reconnect`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConnect,
}

var (
	connectStreams     string
	connectFeatures    string
	connectNoReconnect bool
	connectTimeout     time.Duration
	connectDuration    time.Duration
	connectFormat      string
	connectColor       string
)

// transportFactory creates the radio backend (can be overridden in tests)
var transportFactory = newPlatformTransport

func init() {
	connectCmd.Flags().StringVar(&connectStreams, "stream", "", "Streaming sub-features to request, comma-separated (e.g., ecg,acc)")
	connectCmd.Flags().StringVar(&connectFeatures, "features", "", "Features to negotiate, comma-separated (hr,battery,device_info,streaming,file_transfer)")
	connectCmd.Flags().BoolVar(&connectNoReconnect, "no-reconnect", false, "Do not reconnect after link loss")
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 0, "Connection attempt timeout (default from config)")
	connectCmd.Flags().DurationVar(&connectDuration, "duration", 0, "Stop after this long; 0 runs until interrupted")
	connectCmd.Flags().StringVar(&connectFormat, "format", FormatText, "Output format: text or json")
	connectCmd.Flags().StringVar(&connectColor, "color", "auto", "Colorize text output: auto, always, or never")
	connectCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

// loadConfig reads --config (or defaults) and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags override the file only when given explicitly
	flags := cmd.Flags()
	if flags.Changed("stream") {
		cfg.Streaming = splitList(connectStreams)
	}
	if flags.Changed("features") {
		cfg.Features = splitList(connectFeatures)
	}
	if connectNoReconnect {
		cfg.Reconnect.Enabled = false
	}
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma-separated flag value, skipping empty items.
func splitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// useColor resolves --color against the output stream.
func useColor(mode string, w io.Writer) (bool, error) {
	switch strings.ToLower(mode) {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		// Pipes and files get plain text
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid color mode %q: use auto, always, or never", mode)
	}
}

func runConnect(cmd *cobra.Command, args []string) error {
	// Parse and validate configuration first
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Logs go to stderr, events to stdout
	logger, err := configureLogger(cmd, cfg, "verbose", cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	colored, err := useColor(connectColor, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	printer, err := NewEventPrinter(cmd.OutOrStdout(), connectFormat, colored)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Open the platform radio backend
	transport, closeTransport, err := transportFactory(logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeTransport == nil {
			return
		}
		if err := closeTransport(); err != nil {
			logger.WithField("error", err).Warn("Failed to close transport")
		}
	}()

	// Run until Ctrl+C, SIGTERM or --duration
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if connectDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectDuration)
		defer cancel()
	}

	mgr, err := session.NewManager(session.Options{
		Config:    cfg,
		Transport: transport,
		Callback:  printer,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// Sessions connect in the background; Connect only fails on a bad id
	for _, id := range args {
		logger.WithField("device_id", id).Info("Starting session")
		if err := mgr.ConnectWithInfo(device.Info{ID: id, Address: id}); err != nil {
			_ = mgr.Close(context.Background())
			return fmt.Errorf("connect %s: %w", id, err)
		}
	}

	<-ctx.Done()

	// Give every session a bounded chance to tear down its link
	logger.WithField("sessions", len(mgr.Sessions())).Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mgr.Close(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
		}).Warn("Sessions did not stop cleanly")
		return err
	}
	return nil
}
