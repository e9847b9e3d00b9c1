package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rrflink/sbcd/internal/config"
	"github.com/rrflink/sbcd/internal/daemon"
	"github.com/rrflink/sbcd/internal/logging"
	"github.com/rrflink/sbcd/pkg/wire"
)

var (
	configPath string
	updateOnly bool
	logLevel   string
	logJSON    bool
	spiDevice  string
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:   "sbcd",
	Short: "SPI-to-firmware bridge daemon",
	Long: `sbcd bridges a 3D printer mainboard's SPI object-model protocol to
a local IPC socket: it maintains the channel scheduler, the host-side
object model mirror, and the periodic host updater (network, volumes,
clock/hostname drift) described by the SPI host interface.`,
	Version: "1.0.0",
	RunE:    run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/opt/sbcd/sbcd.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&updateOnly, "update-only", false, "skip IPC bring-up and the Aux bridge: run only the transport pump and host updater")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "override the configured log output to JSON")
	rootCmd.PersistentFlags().StringVar(&spiDevice, "spi-device", "", "override the configured SPI device path")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "override the configured IPC socket path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("sbcd: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logJSON {
		cfg.Log.JSON = true
	}
	if spiDevice != "" {
		cfg.SPI.Device = spiDevice
	}
	if socketPath != "" {
		cfg.IPC.SocketPath = socketPath
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("sbcd: %w", err)
	}
	config.Normalize(cfg)

	log := logging.New(os.Stderr, parseLevel(cfg.Log.Level), cfg.Log.JSON)

	tx, err := wire.OpenLinuxSPI(cfg.SPI.Device, cfg.SPI.SpeedHz, cfg.SPI.TransferSize, cfg.SPI.ReadyGPIOChip)
	if err != nil {
		return fmt.Errorf("sbcd: opening SPI transport: %w", err)
	}

	d := daemon.New(cfg, log, tx)
	defer d.Close()

	if updateOnly {
		d.SetUpdateOnly(true)
	} else if cfg.Aux.Device != "" {
		aux, err := wire.OpenAuxPort(cfg.Aux.Device, cfg.Aux.BaudRate)
		if err != nil {
			return fmt.Errorf("sbcd: opening aux port: %w", err)
		}
		d.SetAuxPort(aux)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if updateOnly {
		log.Info("sbcd starting in update-only mode", logging.F("device", cfg.SPI.Device))
	} else {
		log.Info("sbcd starting", logging.F("device", cfg.SPI.Device), logging.F("socket", cfg.IPC.SocketPath))
	}
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("sbcd: %w", err)
	}
	log.Info("sbcd shut down")
	return nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
