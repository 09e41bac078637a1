package cachewire

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// MaxMessageSizeEnv overrides max_message_size from a configuration file.
const MaxMessageSizeEnv = "CACHEWIRE_MAX_MESSAGE_SIZE"

type serverFileConfig struct {
	Addr              string `toml:"addr"`
	MaxConnections    int    `toml:"max_connections"`
	MaxMessages       int64  `toml:"max_messages"`
	MaxBytes          int64  `toml:"max_bytes"`
	CheckInterval     string `toml:"check_interval"`
	BufferSize        int    `toml:"buffer_size"`
	HeaderReadTimeout string `toml:"header_read_timeout"`
	ReadTimeout       string `toml:"read_timeout"`
	MaxIncomingLength int    `toml:"max_incoming_length"`
	MaxMessageSize    int    `toml:"max_message_size"`
}

// LoadServerConfig reads a TOML file over DefaultServerConfig. Durations are strings
// such as "250ms".
func LoadServerConfig(path string) (ServerConfig, error) {
	var raw serverFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	return serverConfigFrom(raw, meta)
}

// ParseServerConfig is LoadServerConfig for TOML held in memory.
func ParseServerConfig(data string) (ServerConfig, error) {
	var raw serverFileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("parse server config: %w", err)
	}
	return serverConfigFrom(raw, meta)
}

func serverConfigFrom(raw serverFileConfig, meta toml.MetaData) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("max_messages") {
		cfg.MaxMessages = raw.MaxMessages
	}
	if meta.IsDefined("max_bytes") {
		cfg.MaxBytes = raw.MaxBytes
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_incoming_length") {
		cfg.MaxIncomingLength = raw.MaxIncomingLength
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"check_interval", raw.CheckInterval, &cfg.CheckInterval},
		{"header_read_timeout", raw.HeaderReadTimeout, &cfg.HeaderReadTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return ServerConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	size, err := maxMessageSizeFromEnv(cfg.MaxMessageSize)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.MaxMessageSize = size
	return cfg, nil
}

type clientFileConfig struct {
	Servers             []string `toml:"servers"`
	MaxSize             int32    `toml:"max_size"`
	MaxConnLifetime     string   `toml:"max_conn_lifetime"`
	MaxConnIdleTime     string   `toml:"max_conn_idle_time"`
	HealthCheckInterval string   `toml:"health_check_interval"`
	BufferSize          int      `toml:"buffer_size"`
	MaxMessageSize      int      `toml:"max_message_size"`
	RetryAttempts       int      `toml:"retry_attempts"`
}

// LoadClientConfig reads the server list and client settings from a TOML file.
func LoadClientConfig(path string) (Servers, Config, error) {
	var raw clientFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, Config{}, fmt.Errorf("load client config: %w", err)
	}

	var cfg Config
	servers := make([]string, 0, len(raw.Servers))
	for _, s := range raw.Servers {
		if v := strings.TrimSpace(s); v != "" {
			servers = append(servers, v)
		}
	}
	if len(servers) == 0 {
		return nil, Config{}, ErrNoServers
	}

	if meta.IsDefined("max_size") {
		cfg.MaxSize = raw.MaxSize
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("retry_attempts") {
		cfg.RetryAttempts = raw.RetryAttempts
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"max_conn_lifetime", raw.MaxConnLifetime, &cfg.MaxConnLifetime},
		{"max_conn_idle_time", raw.MaxConnIdleTime, &cfg.MaxConnIdleTime},
		{"health_check_interval", raw.HealthCheckInterval, &cfg.HealthCheckInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return nil, Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	size, err := maxMessageSizeFromEnv(cfg.MaxMessageSize)
	if err != nil {
		return nil, Config{}, err
	}
	cfg.MaxMessageSize = size
	return NewStaticServers(servers...), cfg, nil
}

func maxMessageSizeFromEnv(current int) (int, error) {
	v, ok := os.LookupEnv(MaxMessageSizeEnv)
	if !ok || strings.TrimSpace(v) == "" {
		return current, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("parse %s: invalid size %q", MaxMessageSizeEnv, v)
	}
	return n, nil
}
