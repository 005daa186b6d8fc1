package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the storefront-facing REST API server.
type ServerConfig struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"` // 512KB

	// Security
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

// Validate performs validation on the ServerConfig.
func (c *ServerConfig) Validate(environment string) error {
	// Validate port
	if err := validatePort(c.Port, "server"); err != nil {
		return err
	}

	// Validate host
	if err := validateHost(c.Host, "server"); err != nil {
		return err
	}

	// Production security requirements
	if environment == EnvironmentProduction && !c.TLSEnabled {
		return fmt.Errorf("TLS must be enabled in production environment")
	}

	// Validate TLS configuration
	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("TLS enabled but cert or key file not specified")
	}

	return nil
}
