package session

import (
	"fmt"
	"strings"
	"time"
)

// DefaultProtocolVersion is the version string this build speaks.
const DefaultProtocolVersion = "glap.rs-0.1.0"

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines handshake, transport and reconnect settings for one side
// of a connection.
type Config struct {
	ProtocolVersion   string
	SupportedVersions []string
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	MaxMessageBytes   int64
	Backoff           BackoffConfig
	SecurityMode      SecurityMode
	TLS               TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ProtocolVersion:   DefaultProtocolVersion,
		SupportedVersions: []string{DefaultProtocolVersion},
		HandshakeTimeout:  5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		MaxMessageBytes:   1 << 20,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.ProtocolVersion) == "" {
		c.ProtocolVersion = def.ProtocolVersion
	}
	if len(c.SupportedVersions) == 0 {
		c.SupportedVersions = []string{c.ProtocolVersion}
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = def.MaxMessageBytes
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ProtocolVersion) == "" {
		return fmt.Errorf("session config missing protocol_version")
	}
	if c.HeartbeatInterval >= c.ReadTimeout {
		return fmt.Errorf("session config heartbeat_interval (%s) must be shorter than read_timeout (%s)",
			c.HeartbeatInterval, c.ReadTimeout)
	}
	if c.MaxMessageBytes < 1 {
		return fmt.Errorf("session config max_message_bytes must be positive")
	}
	return nil
}

// Supports reports whether version is accepted during the handshake.
func (c Config) Supports(version string) bool {
	for _, v := range c.SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}
