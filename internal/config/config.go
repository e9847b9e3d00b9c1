// Package config loads and validates the daemon's YAML configuration file.
package config

import "time"

// Config is the root of the daemon's YAML configuration.
type Config struct {
	SPI      SPIConfig      `yaml:"spi"`
	IPC      IPCConfig      `yaml:"ipc"`
	Macro    MacroConfig    `yaml:"macro"`
	Host     HostConfig     `yaml:"host"`
	Log      LogConfig      `yaml:"log"`
	Aux      AuxConfig      `yaml:"aux"`
}

// AuxConfig controls the optional PanelDue-style serial display bridged
// onto the Aux channel. An empty Device disables the bridge.
type AuxConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// SPIConfig controls the host<->firmware transport.
type SPIConfig struct {
	Device          string        `yaml:"device"`            // e.g. /dev/spidev0.0
	ReadyGPIOChip   string        `yaml:"ready_gpio_chip"`    // e.g. /sys/class/gpio/gpio25
	TransferSize    int           `yaml:"transfer_size"`      // bytes, default 8192
	SpeedHz         int           `yaml:"speed_hz"`           // SPI clock, default 8_000_000
	PollInterval    time.Duration `yaml:"poll_interval"`      // spi_poll_delay
	MaxResends      int           `yaml:"max_resends"`        // resend budget before Failed
	ProtocolVersion uint16        `yaml:"-"`                  // fixed by this build, not user-configurable
}

// IPCConfig controls the local stream socket.
type IPCConfig struct {
	SocketPath          string        `yaml:"socket_path"`
	SocketPollInterval   time.Duration `yaml:"socket_poll_interval"`
	MaxSubscriberBacklog int           `yaml:"max_subscriber_backlog"`
}

// MacroConfig controls macro/system file resolution.
type MacroConfig struct {
	SysDir   string `yaml:"sys_dir"`
	MacroDir string `yaml:"macro_dir"`
}

// HostConfig controls the periodic host updater.
type HostConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"`
	MaxMessageAge  time.Duration `yaml:"max_message_age"`
	ClockDriftTol  time.Duration `yaml:"clock_drift_tolerance"`
}

// LogConfig controls the leveled logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration applied when no file is present and
// as the base that a loaded file's values are merged onto.
func Default() *Config {
	return &Config{
		SPI: SPIConfig{
			Device:          "/dev/spidev0.0",
			ReadyGPIOChip:   "/sys/class/gpio/gpio25",
			TransferSize:    8192,
			SpeedHz:         8_000_000,
			PollInterval:    25 * time.Millisecond,
			MaxResends:      3,
			ProtocolVersion: 5,
		},
		IPC: IPCConfig{
			SocketPath:           "/run/sbcd/sbcd.sock",
			SocketPollInterval:   2 * time.Second,
			MaxSubscriberBacklog: 32,
		},
		Macro: MacroConfig{
			SysDir:   "/opt/sbcd/sys",
			MacroDir: "/opt/sbcd/macros",
		},
		Host: HostConfig{
			UpdateInterval: 2 * time.Second,
			MaxMessageAge:  1 * time.Hour,
			ClockDriftTol:  2 * time.Second,
		},
		Aux: AuxConfig{
			Device:   "",
			BaudRate: 57600,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
