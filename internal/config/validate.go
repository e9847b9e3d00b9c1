package config

import "fmt"

// Validate checks configuration correctness. It performs declarative
// validation only and must not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.SPI.Device == "" {
		return fmt.Errorf("spi.device must not be empty")
	}
	if cfg.SPI.TransferSize <= 0 || cfg.SPI.TransferSize%4 != 0 {
		return fmt.Errorf("spi.transfer_size must be a positive multiple of 4, got %d", cfg.SPI.TransferSize)
	}
	if cfg.SPI.MaxResends <= 0 {
		return fmt.Errorf("spi.max_resends must be positive, got %d", cfg.SPI.MaxResends)
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path must not be empty")
	}
	if cfg.Host.UpdateInterval <= 0 {
		return fmt.Errorf("host.update_interval must be positive")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level %q is not one of debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
