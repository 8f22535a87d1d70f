package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Pool   PoolConfig   `mapstructure:"pool"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// PoolConfig contains the execution-pool settings. Size is fixed for the
// pool's lifetime; MaxPending caps the acquisition backlog and may be
// adjusted at runtime through the pool itself.
type PoolConfig struct {
	Size       int `mapstructure:"size"        validate:"required,gt=0"`
	MaxPending int `mapstructure:"max_pending" validate:"gte=0"`
}
