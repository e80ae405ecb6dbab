package types

import (
	"encoding/json"
	"fmt"
	"os"
)

// TransportOpts holds the producer's TLS listener identity.
type TransportOpts struct {
	CertPath string `json:"cert_path"`
	KeyPath  string `json:"key_path"`
	FQDN     string `json:"fqdn"`
}

// TransportConfig selects the producer's preferred frame compressor.
// UseZstd and UseLZ4 are mutually exclusive; leaving both false selects
// identity (no compression).
type TransportConfig struct {
	UseZstdCompression bool `json:"use_zstd_compression"`
	UseLZ4Compression  bool `json:"use_lz4_compression"`
}

// Compression resolves the configured compressor, returning an error if
// both zstd and lz4 are requested at once (§9 Open Question 1: resolved by
// rejecting the ambiguous config outright rather than picking a priority
// order).
func (t TransportConfig) Compression() (CompressionKind, *GatewayError) {
	switch {
	case t.UseZstdCompression && t.UseLZ4Compression:
		return CompressionNone, NewGatewayError(ErrConfiguration,
			"use_zstd_compression and use_lz4_compression are mutually exclusive", nil)
	case t.UseZstdCompression:
		return CompressionZstd, nil
	case t.UseLZ4Compression:
		return CompressionLZ4, nil
	default:
		return CompressionNone, nil
	}
}

// ProducerConfig is the producer plugin's on-disk JSON configuration, as
// loaded from the path passed by the validator via the Geyser plugin
// config mechanism.
type ProducerConfig struct {
	LibPath       string          `json:"libpath"`
	LogLevel      string          `json:"log_level"`
	BindAddr      string          `json:"bind_addr"`
	TransportOpts TransportOpts   `json:"transport_opts"`
	TransportCfg  TransportConfig `json:"transport_cfg"`
	UseCoalescer  bool            `json:"use_account_coalescer"`
	CoalescerUs   int64           `json:"account_coalescer_duration_us"`
}

// DefaultCoalescerWindowUs is applied when UseCoalescer is true but
// CoalescerUs is left at zero.
const DefaultCoalescerWindowUs int64 = 1000

// LoadProducerConfig reads and validates a ProducerConfig from path.
func LoadProducerConfig(path string) (*ProducerConfig, *GatewayError) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewGatewayError(ErrConfiguration, fmt.Sprintf("reading config %q", path), err)
	}
	expanded := ExpandEnv(string(raw))
	var cfg ProducerConfig
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, NewGatewayError(ErrConfiguration, fmt.Sprintf("parsing config %q", path), err)
	}
	if gerr := cfg.Validate(); gerr != nil {
		return nil, gerr
	}
	return &cfg, nil
}

// Validate checks the config for internal consistency and applies defaults.
func (c *ProducerConfig) Validate() *GatewayError {
	if c.BindAddr == "" {
		return NewGatewayError(ErrConfiguration, "bind_addr is required", nil)
	}
	if c.TransportOpts.CertPath == "" || c.TransportOpts.KeyPath == "" {
		return NewGatewayError(ErrConfiguration, "transport_opts.cert_path and key_path are required", nil)
	}
	if _, gerr := c.TransportCfg.Compression(); gerr != nil {
		return gerr
	}
	if c.UseCoalescer && c.CoalescerUs <= 0 {
		c.CoalescerUs = DefaultCoalescerWindowUs
	}
	return nil
}
