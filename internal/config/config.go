// Package config provides configuration loading for alcove.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/logging"
	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
)

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `koanf:"host"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EventsConfig holds the optional NATS eventing settings.
type EventsConfig struct {
	// URL is the NATS server URL. Empty disables eventing.
	URL string `koanf:"url"`
}

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig         `koanf:"server"`
	Logging    logging.Config       `koanf:"logging"`
	Library    library.RouterConfig `koanf:"library"`
	Embeddings embeddings.Config    `koanf:"embeddings"`
	Engine     orchestrator.Config  `koanf:"engine"`
	Events     EventsConfig         `koanf:"events"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8642
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	c.Logging.ApplyDefaults()
	c.Embeddings.ApplyDefaults()
	c.Engine.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Library.DataDir == "" {
		return fmt.Errorf("library data_dir is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	return nil
}
