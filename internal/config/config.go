// Package config loads dhcpsentry's bootstrap TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level bootstrap configuration.
type Config struct {
	Listen     ListenConfig     `toml:"listen"`
	Detection  DetectionConfig  `toml:"detection"`
	History    HistoryConfig    `toml:"history"`
	Store      StoreConfig      `toml:"store"`
	API        APIConfig        `toml:"api"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ListenConfig controls the passive UDP listener.
type ListenConfig struct {
	Address   string `toml:"address"`   // default ":67"
	Interface string `toml:"interface"` // optional, binds to one NIC
}

// DetectionConfig controls the hybrid DHCP/SMB detector.
type DetectionConfig struct {
	EnableSMBProbing  bool   `toml:"enable_smb_probing"`
	SMBTimeoutSeconds int    `toml:"smb_timeout_seconds"`
	SMBCacheTTLSeconds int   `toml:"smb_cache_ttl_seconds"`
	MACOverridesPath  string `toml:"mac_overrides_path"`
}

// SMBTimeout returns the configured SMB dial/IO timeout as a Duration.
func (d DetectionConfig) SMBTimeout() time.Duration {
	return time.Duration(d.SMBTimeoutSeconds) * time.Second
}

// SMBCacheTTL returns the configured SMB probe-cache TTL as a Duration.
func (d DetectionConfig) SMBCacheTTL() time.Duration {
	return time.Duration(d.SMBCacheTTLSeconds) * time.Second
}

// HistoryConfig controls the in-memory ring buffer. Capacity sizes the
// ring; BroadcastBufferSize and PrimingBurstSize are parsed but not read
// anywhere — the hub's per-subscriber buffer (100) and the WebSocket
// priming burst (50) are fixed constants.
type HistoryConfig struct {
	Capacity           int `toml:"capacity"`
	BroadcastBufferSize int `toml:"broadcast_buffer_size"`
	PrimingBurstSize   int `toml:"priming_burst_size"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	JSONLogPath string `toml:"json_log_path"`
	SQLitePath  string `toml:"sqlite_path"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// APIConfig controls the HTTP/WebSocket façade.
type APIConfig struct {
	Address string `toml:"address"` // default ":8080"
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Defaults returns a Config populated with the same defaults spec.md
// names (history capacity 1000, broadcast channel 100, priming burst 50,
// HTTP bind :8080, SMB probing enabled with a 3s timeout and 1h cache).
func Defaults() Config {
	return Config{
		Listen: ListenConfig{
			Address: ":67",
		},
		Detection: DetectionConfig{
			EnableSMBProbing:   true,
			SMBTimeoutSeconds:  3,
			SMBCacheTTLSeconds: 3600,
			MACOverridesPath:   "mac_os_mapping.toml",
		},
		History: HistoryConfig{
			Capacity:            1000,
			BroadcastBufferSize: 100,
			PrimingBurstSize:    50,
		},
		Store: StoreConfig{
			JSONLogPath:  "dhcpsentry.log.jsonl",
			SQLitePath:   "dhcpsentry.db",
			MaxOpenConns: 10,
		},
		API: APIConfig{
			Address: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads and merges a TOML file on top of Defaults(). An empty path
// is not an error — the defaults alone are a usable configuration — but a
// file that cannot be read or parsed is returned as an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}
