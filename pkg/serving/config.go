package serving

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the endpoint configuration of a Server.
type Config struct {
	// HTTPAddress is the bind address for the HTTP endpoint.
	HTTPAddress string
	// HTTPPort is the port for the HTTP endpoint. 0 picks a free port
	// (the chosen address is available from Server.Addr after Run).
	HTTPPort int
	// ShutdownTimeout bounds graceful shutdown in Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the local-development defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddress:     "127.0.0.1",
		HTTPPort:        8000,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig builds a Config from defaults, an optional config file
// (YAML/TOML/JSON, decided by extension), and MODELBIND_* environment
// variables, in increasing precedence.
func LoadConfig(path string) (Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("http_address", def.HTTPAddress)
	v.SetDefault("http_port", def.HTTPPort)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetEnvPrefix("MODELBIND")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddress:     v.GetString("http_address"),
		HTTPPort:        v.GetInt("http_port"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	if cfg.HTTPPort < 0 || cfg.HTTPPort > 65535 {
		return Config{}, fmt.Errorf("invalid http_port %d", cfg.HTTPPort)
	}
	return cfg, nil
}
