// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Schedule defines one recurring workflow run
type Schedule struct {
	Name     string `mapstructure:"name"`
	Spec     string `mapstructure:"spec"`
	ServerID string `mapstructure:"server_id"`
	Template string `mapstructure:"template"`
}

// Config is the full service configuration
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Agent struct {
		Addr            string        `mapstructure:"addr"`
		DialTimeout     time.Duration `mapstructure:"dial_timeout"`
		ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	} `mapstructure:"agent"`

	Engine struct {
		InterTaskDelay time.Duration `mapstructure:"inter_task_delay"`
		RetryDelay     time.Duration `mapstructure:"retry_delay"`
	} `mapstructure:"engine"`

	History struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"history"`

	Audit struct {
		// Backend selects the audit recorder: memory, nats, or none
		Backend string `mapstructure:"backend"`

		Memory struct {
			BaseURL string        `mapstructure:"base_url"`
			APIKey  string        `mapstructure:"api_key"`
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"memory"`

		NATS struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"nats"`
	} `mapstructure:"audit"`

	Schedules []Schedule `mapstructure:"schedules"`
}

// Load reads configuration from the given directory (config.yaml) and the
// ASM_* environment, applying defaults for anything unset. A missing config
// file is not an error; the defaults stand alone.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("asm")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "ai-server-management")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("agent.addr", "localhost:5000")
	v.SetDefault("agent.dial_timeout", 5*time.Second)
	v.SetDefault("agent.response_timeout", 5*time.Second)
	v.SetDefault("engine.inter_task_delay", 500*time.Millisecond)
	v.SetDefault("engine.retry_delay", time.Second)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "run_history.db")
	v.SetDefault("audit.backend", "memory")
	v.SetDefault("audit.memory.base_url", "http://localhost:8001")
	v.SetDefault("audit.memory.timeout", 3*time.Second)
	v.SetDefault("audit.nats.url", "nats://localhost:4222")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}
