// Package config loads process configuration from the environment.
//
// Configuration is read once at startup into an immutable Config value
// that is passed by reference into the connector and server; there are no
// runtime lookups. A .env file in the working directory is honored when
// present.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults for every configuration key.
const (
	DefaultServerPort  = 8080
	DefaultUpstreamURL = "wss://api.mainnet-beta.solana.com"

	// DefaultProgramID is the pump.fun program on Solana mainnet.
	DefaultProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

	DefaultRetryDelay   = 5 * time.Second
	DefaultClientBuffer = 256
)

// Config holds all runtime settings for the relay.
type Config struct {
	// ServerPort is the TCP port the downstream WebSocket server binds.
	ServerPort int

	// UpstreamURL is the Solana RPC WebSocket endpoint.
	UpstreamURL string

	// ProgramID is the program whose account changes are subscribed to.
	ProgramID string

	// RetryDelay is the fixed wait between upstream reconnect attempts.
	RetryDelay time.Duration

	// ClientBuffer is the per-connection outbound channel capacity.
	ClientBuffer int

	// LogLevel and LogFormat configure the process logger.
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, applying defaults for
// unset keys. An out-of-range port is the only fatal condition.
func Load() (*Config, error) {
	// Best effort; absence of a .env file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVER_PORT", DefaultServerPort)
	v.SetDefault("SOLANA_RPC_WS", DefaultUpstreamURL)
	v.SetDefault("PUMP_PROGRAM_ID", DefaultProgramID)
	v.SetDefault("RETRY_DELAY", DefaultRetryDelay)
	v.SetDefault("CLIENT_BUFFER", DefaultClientBuffer)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.AutomaticEnv()

	cfg := &Config{
		ServerPort:   v.GetInt("SERVER_PORT"),
		UpstreamURL:  v.GetString("SOLANA_RPC_WS"),
		ProgramID:    v.GetString("PUMP_PROGRAM_ID"),
		RetryDelay:   v.GetDuration("RETRY_DELAY"),
		ClientBuffer: v.GetInt("CLIENT_BUFFER"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		LogFormat:    v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the process cannot start with.
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("port out of range: %d", c.ServerPort)
	}
	if c.UpstreamURL == "" {
		return fmt.Errorf("upstream URL must not be empty")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("program ID must not be empty")
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = DefaultClientBuffer
	}
	return nil
}
