package config

import (
	"github.com/danmuck/glapctl/internal/protocol/session"
)

// On-disk shapes. Durations are Go duration strings ("250ms", "5s").

type timeoutsFile struct {
	Handshake       string `toml:"handshake"`
	Read            string `toml:"read"`
	Write           string `toml:"write"`
	Heartbeat       string `toml:"heartbeat"`
	MaxMessageBytes int64  `toml:"max_message_bytes"`
}

type tlsFile struct {
	Enabled            bool   `toml:"enabled"`
	CertFile           string `toml:"cert_file,omitempty"`
	KeyFile            string `toml:"key_file,omitempty"`
	CAFile             string `toml:"ca_file,omitempty"`
	ServerName         string `toml:"server_name,omitempty"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type backoffFile struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type bodyFile struct {
	ID     uint32  `toml:"id"`
	Name   string  `toml:"name"`
	Radius float32 `toml:"radius"`
	X      float32 `toml:"x"`
	Y      float32 `toml:"y"`
}

type partFile struct {
	ID           uint32  `toml:"id"`
	Kind         string  `toml:"kind"`
	Body         uint32  `toml:"body"`
	OrbitRadius  float32 `toml:"orbit_radius"`
	AngularSpeed float32 `toml:"angular_speed"`
	Phase        float32 `toml:"phase"`
}

type worldFile struct {
	Bodies []bodyFile `toml:"bodies"`
	Parts  []partFile `toml:"parts"`
}

type serverFile struct {
	Addr        string   `toml:"addr"`
	StreamAddr  string   `toml:"stream_addr"`
	CorsOrigins []string `toml:"cors_origins"`
	TickRate    string   `toml:"tick_rate"`
	AdminToken  string   `toml:"admin_token"`

	ProtocolVersion   string   `toml:"protocol_version"`
	SupportedVersions []string `toml:"supported_versions"`
	SecurityMode      string   `toml:"security_mode"`

	Timeouts timeoutsFile `toml:"timeouts"`
	TLS      tlsFile      `toml:"tls"`
	World    worldFile    `toml:"world"`
}

type clientFile struct {
	URL                string `toml:"url"`
	SessionFile        string `toml:"session_file"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`

	ProtocolVersion   string   `toml:"protocol_version"`
	SupportedVersions []string `toml:"supported_versions"`
	SecurityMode      string   `toml:"security_mode"`

	Timeouts timeoutsFile `toml:"timeouts"`
	Backoff  backoffFile  `toml:"backoff"`
	TLS      tlsFile      `toml:"tls"`
}

func toTimeoutsFile(cfg session.Config) timeoutsFile {
	return timeoutsFile{
		Handshake:       cfg.HandshakeTimeout.String(),
		Read:            cfg.ReadTimeout.String(),
		Write:           cfg.WriteTimeout.String(),
		Heartbeat:       cfg.HeartbeatInterval.String(),
		MaxMessageBytes: cfg.MaxMessageBytes,
	}
}

func toTLSFile(cfg session.TLSConfig) tlsFile {
	return tlsFile(cfg)
}

func toServerFile(cfg ServerConfig) serverFile {
	out := serverFile{
		Addr:        cfg.Addr,
		StreamAddr:  cfg.StreamAddr,
		CorsOrigins: cfg.CorsOrigins,
		TickRate:    cfg.TickRate.String(),
		AdminToken:  cfg.AdminToken,

		ProtocolVersion:   cfg.Session.ProtocolVersion,
		SupportedVersions: cfg.Session.SupportedVersions,
		SecurityMode:      string(cfg.Session.SecurityMode),

		Timeouts: toTimeoutsFile(cfg.Session),
		TLS:      toTLSFile(cfg.Session.TLS),
	}
	for _, b := range cfg.World.Bodies {
		out.World.Bodies = append(out.World.Bodies, bodyFile(b))
	}
	for _, p := range cfg.World.Parts {
		out.World.Parts = append(out.World.Parts, partFile{
			ID:           p.ID,
			Kind:         p.Kind.String(),
			Body:         p.Body,
			OrbitRadius:  p.OrbitRadius,
			AngularSpeed: p.AngularSpeed,
			Phase:        p.Phase,
		})
	}
	return out
}

func toClientFile(cfg ClientConfig) clientFile {
	return clientFile{
		URL:                cfg.URL,
		SessionFile:        cfg.SessionFile,
		MaxConnectAttempts: cfg.MaxConnectAttempts,

		ProtocolVersion:   cfg.Session.ProtocolVersion,
		SupportedVersions: cfg.Session.SupportedVersions,
		SecurityMode:      string(cfg.Session.SecurityMode),

		Timeouts: toTimeoutsFile(cfg.Session),
		Backoff: backoffFile{
			InitialDelay: cfg.Session.Backoff.InitialDelay.String(),
			Multiplier:   cfg.Session.Backoff.Multiplier,
			MaxDelay:     cfg.Session.Backoff.MaxDelay.String(),
			Jitter:       cfg.Session.Backoff.Jitter,
		},
		TLS: toTLSFile(cfg.Session.TLS),
	}
}
