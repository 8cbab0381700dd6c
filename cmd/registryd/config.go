package main

import (
	"fmt"

	"github.com/spf13/viper"
)

// config is the registry daemon's layered configuration: flags override
// environment variables, which override a config file, which override the
// defaults set below — following Nirmitee-tech-headless-ehr-fhir/api's
// internal/config.Config pattern of a flat mapstructure-tagged struct
// populated by one viper.Viper.
type config struct {
	StoreDir        string `mapstructure:"STORE_DIR"`
	ListenAddr      string `mapstructure:"LISTEN_ADDR"`
	SchemaFile      string `mapstructure:"SCHEMA_FILE"`
	SearchParamFile string `mapstructure:"SEARCH_PARAMS_FILE"`
	DefaultHandling string `mapstructure:"DEFAULT_HANDLING"`
	Timezone        string `mapstructure:"TIMEZONE"`
}

func loadConfig(v *viper.Viper) (*config, error) {
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("STORE_DIR", "./data")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DEFAULT_HANDLING", "lenient")
	v.SetDefault("TIMEZONE", "UTC")

	v.BindEnv("STORE_DIR")
	v.BindEnv("LISTEN_ADDR")
	v.BindEnv("SCHEMA_FILE")
	v.BindEnv("SEARCH_PARAMS_FILE")
	v.BindEnv("DEFAULT_HANDLING")
	v.BindEnv("TIMEZONE")

	// a missing .env is not an error; flags/env/defaults still apply.
	_ = v.ReadInConfig()

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("STORE_DIR must not be empty")
	}
	if c.DefaultHandling != "strict" && c.DefaultHandling != "lenient" {
		return fmt.Errorf("DEFAULT_HANDLING must be \"strict\" or \"lenient\", got %q", c.DefaultHandling)
	}
	return nil
}
