// Package config loads the engine and relay configuration. Precedence is
// flags > environment > file > defaults; the transport variant is part of
// configuration and never probed at runtime.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transport modes form a closed set.
const (
	ModeNetwork = "network"
	ModeLocal   = "local"
)

type Config struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Transport struct {
		// Mode is "network" or "local".
		Mode string `yaml:"mode"`
		// RelayURL is the websocket base URL for network mode,
		// e.g. "ws://localhost:8480".
		RelayURL string `yaml:"relay_url"`
	} `yaml:"transport"`

	Reconcile struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"reconcile"`

	Notify struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"notify"`

	Relay struct {
		Address   string `yaml:"address"`
		Port      int    `yaml:"port"`
		StorePath string `yaml:"store_path"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"relay"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Logging.Level = "info"
	c.Store.Path = "./data/chatsync"
	c.Transport.Mode = ModeLocal
	c.Transport.RelayURL = "ws://localhost:8480"
	c.Reconcile.Enabled = true
	c.Reconcile.Cron = "* * * * *"
	c.Notify.PerSecond = 1
	c.Notify.Burst = 3
	c.Relay.Address = "0.0.0.0"
	c.Relay.Port = 8480
	c.Relay.StorePath = "./data/chatrelay"
	c.Relay.RateLimit.RPS = 20
	c.Relay.RateLimit.Burst = 40
	return c
}

// Load reads a yaml config file over the defaults. A missing path is not
// an error; the defaults stand.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// LoadEffective merges file and environment. Environment keys:
//
//	CHATSYNC_LOG_LEVEL, CHATSYNC_STORE_PATH, CHATSYNC_TRANSPORT_MODE,
//	CHATSYNC_RELAY_URL, CHATSYNC_RELAY_ADDR, CHATSYNC_RELAY_PORT,
//	CHATSYNC_RELAY_STORE_PATH
func LoadEffective(path string) (Config, error) {
	c, err := Load(path)
	if err != nil {
		return c, err
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHATSYNC_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CHATSYNC_TRANSPORT_MODE"); v != "" {
		c.Transport.Mode = v
	}
	if v := os.Getenv("CHATSYNC_RELAY_URL"); v != "" {
		c.Transport.RelayURL = v
	}
	if v := os.Getenv("CHATSYNC_RELAY_ADDR"); v != "" {
		c.Relay.Address = v
	}
	if v := os.Getenv("CHATSYNC_RELAY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid CHATSYNC_RELAY_PORT %q: %w", v, err)
		}
		c.Relay.Port = p
	}
	if v := os.Getenv("CHATSYNC_RELAY_STORE_PATH"); v != "" {
		c.Relay.StorePath = v
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Transport.Mode)) {
	case ModeNetwork, ModeLocal:
	default:
		return fmt.Errorf("transport.mode must be %q or %q, got %q", ModeNetwork, ModeLocal, c.Transport.Mode)
	}
	if c.Transport.Mode == ModeNetwork && c.Transport.RelayURL == "" {
		return fmt.Errorf("transport.relay_url is required in network mode")
	}
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		return fmt.Errorf("relay.port out of range: %d", c.Relay.Port)
	}
	return nil
}

// RelayAddr joins the relay listen address and port.
func (c Config) RelayAddr() string {
	return net.JoinHostPort(c.Relay.Address, strconv.Itoa(c.Relay.Port))
}
