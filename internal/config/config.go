// Package config loads the client configuration: defaults, then an optional
// YAML file, then CHATTY_-prefixed environment variables, each layer
// overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"chatty.yaml",
	"chatty.yml",
}

const envPrefix = "CHATTY_"

type ServerConfig struct {
	// Endpoint is the websocket URL of the chat server, e.g.
	// ws://localhost:8080/ws.
	Endpoint string `koanf:"endpoint"`
}

type CallConfig struct {
	// RingTicks is how many watchdog ticks an outgoing call may ring before
	// it is auto-cancelled.
	RingTicks int `koanf:"ring_ticks"`
	// TickInterval is the watchdog tick length.
	TickInterval time.Duration `koanf:"tick_interval"`
}

type IdleConfig struct {
	// Threshold is how long without activity before the user is marked AWAY.
	Threshold time.Duration `koanf:"threshold"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type Config struct {
	Server     ServerConfig `koanf:"server"`
	Login      string       `koanf:"login"`
	RememberMe bool         `koanf:"remember_me"`
	DataDir    string       `koanf:"data_dir"`
	Call       CallConfig   `koanf:"call"`
	Idle       IdleConfig   `koanf:"idle"`
	Log        LogConfig    `koanf:"log"`
}

func defaultConfig() *Config {
	return &Config{
		Server:     ServerConfig{Endpoint: "ws://localhost:8080/ws"},
		RememberMe: false,
		DataDir:    ".chatty",
		Call: CallConfig{
			RingTicks:    30,
			TickInterval: time.Second,
		},
		Idle: IdleConfig{Threshold: 300 * time.Second},
		Log:  LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case the
// default paths are probed; a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		for _, candidate := range DefaultConfigPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps CHATTY_-prefixed variables to config keys, e.g.
// CHATTY_SERVER_ENDPOINT -> server.endpoint.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	mappings := map[string]string{
		"server_endpoint":    "server.endpoint",
		"login":              "login",
		"remember_me":        "remember_me",
		"data_dir":           "data_dir",
		"call_ring_ticks":    "call.ring_ticks",
		"call_tick_interval": "call.tick_interval",
		"idle_threshold":     "idle.threshold",
		"log_level":          "log.level",
	}
	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return key
}

func (c *Config) validate() error {
	if c.Server.Endpoint == "" {
		return fmt.Errorf("server.endpoint is required")
	}
	if !strings.HasPrefix(c.Server.Endpoint, "ws://") && !strings.HasPrefix(c.Server.Endpoint, "wss://") {
		return fmt.Errorf("server.endpoint must be a ws:// or wss:// URL")
	}
	if c.Call.RingTicks <= 0 {
		return fmt.Errorf("call.ring_ticks must be positive")
	}
	if c.Call.TickInterval <= 0 {
		return fmt.Errorf("call.tick_interval must be positive")
	}
	return nil
}
