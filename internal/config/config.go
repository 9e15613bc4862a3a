package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/glapctl/internal/protocol"
	"github.com/danmuck/glapctl/internal/protocol/session"
)

// ServerConfig drives `glapctl serve`.
type ServerConfig struct {
	Addr        string
	StreamAddr  string
	CorsOrigins []string
	TickRate    time.Duration
	// AdminToken guards /sessions when set.
	AdminToken string
	Session    session.Config
	World      WorldConfig
}

// ClientConfig drives `glapctl connect`.
type ClientConfig struct {
	URL                string
	SessionFile        string
	MaxConnectAttempts int
	Session            session.Config
}

// WorldConfig seeds the demo world a server streams to each connection.
type WorldConfig struct {
	Bodies []Body
	Parts  []Part
}

type Body struct {
	ID     uint32
	Name   string
	Radius float32
	X      float32
	Y      float32
}

// Part orbits Body at OrbitRadius, advancing AngularSpeed radians per
// second from Phase.
type Part struct {
	ID           uint32
	Kind         protocol.PartKind
	Body         uint32
	OrbitRadius  float32
	AngularSpeed float32
	Phase        float32
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:        ":8080",
		CorsOrigins: []string{"http://localhost:3000"},
		TickRate:    50 * time.Millisecond,
		Session:     session.DefaultConfig(),
		World:       DefaultWorld(),
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:                "ws://localhost:8080/ws",
		SessionFile:        ".glap/session",
		MaxConnectAttempts: 5,
		Session:            session.DefaultConfig(),
	}
}

func DefaultWorld() WorldConfig {
	return WorldConfig{
		Bodies: []Body{
			{ID: 1, Name: "earth", Radius: 10},
			{ID: 2, Name: "moon", Radius: 2.5, X: 40},
		},
		Parts: []Part{
			{ID: 1, Kind: protocol.PartCore, Body: 1, OrbitRadius: 14, AngularSpeed: 0.5},
			{ID: 2, Kind: protocol.PartCargo, Body: 1, OrbitRadius: 15, AngularSpeed: 0.5},
			{ID: 3, Kind: protocol.PartLandingThruster, Body: 1, OrbitRadius: 13, AngularSpeed: 0.5},
			{ID: 4, Kind: protocol.PartHub, Body: 2, OrbitRadius: 4, AngularSpeed: -1},
			{ID: 5, Kind: protocol.PartSolarPanel, Body: 2, OrbitRadius: 5, AngularSpeed: -1, Phase: 0.2},
		},
	}
}

// LoadServerConfig reads path over DefaultServerConfig; only keys present
// in the file override defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("stream_addr") {
		cfg.StreamAddr = strings.TrimSpace(raw.StreamAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("tick_rate") {
		if cfg.TickRate, err = parseDuration("tick_rate", raw.TickRate); err != nil {
			return ServerConfig{}, err
		}
	}
	applyProtocol(meta, raw.ProtocolVersion, raw.SupportedVersions, raw.SecurityMode, &cfg.Session)
	if err := applyTimeouts(meta, raw.Timeouts, &cfg.Session); err != nil {
		return ServerConfig{}, err
	}
	applyTLS(meta, raw.TLS, &cfg.Session)
	if meta.IsDefined("world", "bodies") {
		cfg.World.Bodies = make([]Body, 0, len(raw.World.Bodies))
		for _, b := range raw.World.Bodies {
			cfg.World.Bodies = append(cfg.World.Bodies, Body(b))
		}
	}
	if meta.IsDefined("world", "parts") {
		cfg.World.Parts = make([]Part, 0, len(raw.World.Parts))
		for i, p := range raw.World.Parts {
			kind, err := protocol.ParsePartKind(strings.TrimSpace(p.Kind))
			if err != nil {
				return ServerConfig{}, fmt.Errorf("world.parts[%d]: %w", i, err)
			}
			cfg.World.Parts = append(cfg.World.Parts, Part{
				ID:           p.ID,
				Kind:         kind,
				Body:         p.Body,
				OrbitRadius:  p.OrbitRadius,
				AngularSpeed: p.AngularSpeed,
				Phase:        p.Phase,
			})
		}
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadClientConfig reads path over DefaultClientConfig.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("session_file") {
		cfg.SessionFile = strings.TrimSpace(raw.SessionFile)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	applyProtocol(meta, raw.ProtocolVersion, raw.SupportedVersions, raw.SecurityMode, &cfg.Session)
	if err := applyTimeouts(meta, raw.Timeouts, &cfg.Session); err != nil {
		return ClientConfig{}, err
	}
	applyTLS(meta, raw.TLS, &cfg.Session)
	if meta.IsDefined("backoff", "initial_delay") {
		if cfg.Session.Backoff.InitialDelay, err = parseDuration("backoff.initial_delay", raw.Backoff.InitialDelay); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "max_delay") {
		if cfg.Session.Backoff.MaxDelay, err = parseDuration("backoff.max_delay", raw.Backoff.MaxDelay); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("server config missing addr")
	}
	if cfg.TickRate <= 0 {
		return fmt.Errorf("server config tick_rate must be positive")
	}
	if err := cfg.Session.Validate(); err != nil {
		return err
	}
	if err := cfg.Session.ValidateServerTransport(); err != nil {
		return fmt.Errorf("server config transport: %w", err)
	}
	return ValidateWorld(cfg.World)
}

func ValidateWorld(w WorldConfig) error {
	bodies := make(map[uint32]struct{}, len(w.Bodies))
	for i, b := range w.Bodies {
		if _, dup := bodies[b.ID]; dup {
			return fmt.Errorf("world.bodies[%d]: duplicate id %d", i, b.ID)
		}
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("world.bodies[%d]: name is required", i)
		}
		if b.Radius <= 0 {
			return fmt.Errorf("world.bodies[%d]: radius must be positive", i)
		}
		bodies[b.ID] = struct{}{}
	}
	parts := make(map[uint32]struct{}, len(w.Parts))
	for i, p := range w.Parts {
		if _, dup := parts[p.ID]; dup {
			return fmt.Errorf("world.parts[%d]: duplicate id %d", i, p.ID)
		}
		if !p.Kind.Valid() {
			return fmt.Errorf("world.parts[%d]: invalid kind %d", i, p.Kind)
		}
		if _, ok := bodies[p.Body]; !ok {
			return fmt.Errorf("world.parts[%d]: unknown body %d", i, p.Body)
		}
		parts[p.ID] = struct{}{}
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return fmt.Errorf("client config url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "tcp":
	default:
		return fmt.Errorf("client config url scheme must be ws, wss or tcp, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("client config url missing host")
	}
	if cfg.MaxConnectAttempts < 0 {
		return fmt.Errorf("client config max_connect_attempts must not be negative")
	}
	if err := cfg.Session.Validate(); err != nil {
		return err
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return fmt.Errorf("client config transport: %w", err)
	}
	return nil
}

func applyProtocol(meta toml.MetaData, version string, supported []string, mode string, cfg *session.Config) {
	if meta.IsDefined("protocol_version") {
		cfg.ProtocolVersion = strings.TrimSpace(version)
		if !meta.IsDefined("supported_versions") {
			cfg.SupportedVersions = []string{cfg.ProtocolVersion}
		}
	}
	if meta.IsDefined("supported_versions") {
		cfg.SupportedVersions = normalizeList(supported)
	}
	if meta.IsDefined("security_mode") {
		cfg.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(mode))
	}
}

func applyTimeouts(meta toml.MetaData, raw timeoutsFile, cfg *session.Config) error {
	var err error
	if meta.IsDefined("timeouts", "handshake") {
		if cfg.HandshakeTimeout, err = parseDuration("timeouts.handshake", raw.Handshake); err != nil {
			return err
		}
	}
	if meta.IsDefined("timeouts", "read") {
		if cfg.ReadTimeout, err = parseDuration("timeouts.read", raw.Read); err != nil {
			return err
		}
	}
	if meta.IsDefined("timeouts", "write") {
		if cfg.WriteTimeout, err = parseDuration("timeouts.write", raw.Write); err != nil {
			return err
		}
	}
	if meta.IsDefined("timeouts", "heartbeat") {
		if cfg.HeartbeatInterval, err = parseDuration("timeouts.heartbeat", raw.Heartbeat); err != nil {
			return err
		}
	}
	if meta.IsDefined("timeouts", "max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	return nil
}

func applyTLS(meta toml.MetaData, raw tlsFile, cfg *session.Config) {
	if meta.IsDefined("tls", "enabled") {
		cfg.TLS.Enabled = raw.Enabled
	}
	if meta.IsDefined("tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.InsecureSkipVerify
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
