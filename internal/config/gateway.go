package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GatewayConfig holds the tunable limits for the protocol gateway.
// It is kept in a separate hot-reloadable file so operators can adjust
// limits without restarting the server.
type GatewayConfig struct {
	// Window is the fixed rate-limit window length.
	Window time.Duration `mapstructure:"window"`
	// RepositoryLimit caps requests per repository per window.
	RepositoryLimit int `mapstructure:"repositoryLimit"`
	// ClientLimit caps requests per client per window.
	ClientLimit int `mapstructure:"clientLimit"`
	// KeepAliveInterval is the SSE ping cadence for streaming sessions.
	KeepAliveInterval time.Duration `mapstructure:"keepAliveInterval"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Window:            time.Minute,
		RepositoryLimit:   60,
		ClientLimit:       30,
		KeepAliveInterval: 30 * time.Second,
	}
}

type GatewayConfigHolder struct {
	current atomic.Value // holds GatewayConfig
}

func NewGatewayConfigHolder() (*GatewayConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("gateway")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/relaydocs/config")
	v.AddConfigPath("/etc/relaydocs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RELAYDOCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGatewayConfig()
	v.SetDefault("gateway.window", defaults.Window)
	v.SetDefault("gateway.repositoryLimit", defaults.RepositoryLimit)
	v.SetDefault("gateway.clientLimit", defaults.ClientLimit)
	v.SetDefault("gateway.keepAliveInterval", defaults.KeepAliveInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg GatewayConfig
	if err := v.UnmarshalKey("gateway", &cfg); err != nil {
		return nil, err
	}
	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}

	holder := &GatewayConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GatewayConfig
		if err := v.UnmarshalKey("gateway", &updated); err != nil {
			log.Printf("[gateway-config] reload failed: %v", err)
			return
		}
		if err := validateGatewayConfig(updated); err != nil {
			log.Printf("[gateway-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[gateway-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticGatewayConfigHolder wraps a fixed config with no file watching.
// Intended for tests.
func NewStaticGatewayConfigHolder(cfg GatewayConfig) *GatewayConfigHolder {
	holder := &GatewayConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *GatewayConfigHolder) Get() GatewayConfig {
	return h.current.Load().(GatewayConfig)
}

func validateGatewayConfig(cfg GatewayConfig) error {
	if cfg.Window <= 0 {
		return errors.New("gateway.window must be positive")
	}
	if cfg.RepositoryLimit <= 0 || cfg.ClientLimit <= 0 {
		return errors.New("gateway limits must be positive")
	}
	if cfg.KeepAliveInterval <= 0 {
		return errors.New("gateway.keepAliveInterval must be positive")
	}
	return nil
}
