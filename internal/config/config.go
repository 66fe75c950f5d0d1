// Package config provides configuration loading and management for forest.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Generation Generation `json:"generation" mapstructure:"generation"`
	Evolution  Evolution  `json:"evolution"  mapstructure:"evolution"`
	Selection  Selection  `json:"selection"  mapstructure:"selection"`
}

// Generation configures the content generation gateway.
type Generation struct {
	Model     string        `json:"model"                 mapstructure:"model"`
	APIKeyEnv string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout   time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
	Strict    bool          `json:"strict,omitempty"      mapstructure:"strict"`
}

// Evolution configures the evolution policy.
type Evolution struct {
	Cooldown   time.Duration `json:"cooldown,omitempty"    mapstructure:"cooldown"`
	MinSamples int           `json:"min_samples,omitempty" mapstructure:"min_samples"`
}

// Selection configures default resource assumptions for task selection
// when the caller does not state them.
type Selection struct {
	DefaultEnergy      int `json:"default_energy,omitempty"       mapstructure:"default_energy"`
	DefaultTimeMinutes int `json:"default_time_minutes,omitempty" mapstructure:"default_time_minutes"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Generation: Generation{
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
			Timeout:   60 * time.Second,
		},
		Evolution: Evolution{
			Cooldown:   5 * time.Minute,
			MinSamples: 3,
		},
		Selection: Selection{
			DefaultEnergy:      3,
			DefaultTimeMinutes: 45,
		},
	}
}

// Load reads the config file at path, layered over the defaults. A
// missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) check() error {
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model must not be empty")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation.timeout must be > 0")
	}
	if c.Evolution.MinSamples <= 0 {
		return fmt.Errorf("evolution.min_samples must be > 0")
	}
	if c.Selection.DefaultEnergy < 1 || c.Selection.DefaultEnergy > 5 {
		return fmt.Errorf("selection.default_energy must be in 1..5")
	}
	return nil
}
