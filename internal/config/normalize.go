package config

// Normalize applies post-validation defaults that depend on other
// fields. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.SPI.PollInterval <= 0 {
		cfg.SPI.PollInterval = Default().SPI.PollInterval
	}
	if cfg.IPC.SocketPollInterval <= 0 {
		cfg.IPC.SocketPollInterval = Default().IPC.SocketPollInterval
	}
	// Protocol version is fixed by the build, never by the file.
	cfg.SPI.ProtocolVersion = Default().SPI.ProtocolVersion
}
