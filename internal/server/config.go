package server

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Konstantinospil/FitVibe-demo-sub006/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

func LoadConfig() (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath("./config/server")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg config.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	if envSettings := v.GetStringMap(fmt.Sprintf("server.%s", env)); len(envSettings) > 0 {
		if err := v.UnmarshalKey(fmt.Sprintf("server.%s", env), &cfg.Server); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("auth.issuer", "fitvibe")
	v.SetDefault("auth.audience", "fitvibe-api")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 14*24*time.Hour)
	v.SetDefault("auth.verify_pool_size", 8)

	v.SetDefault("cookie.name", "fv_refresh")
	v.SetDefault("cookie.same_site", "strict")

	v.SetDefault("keys.overlap_window", 24*time.Hour)
	v.SetDefault("keys.sweep_interval", 5*time.Minute)

	v.SetDefault("lockout.account_max_attempts", 10)
	v.SetDefault("lockout.account_window", 15*time.Minute)
	v.SetDefault("lockout.account_lock_duration", 15*time.Minute)
	v.SetDefault("lockout.ip_max_attempts", 50)
	v.SetDefault("lockout.ip_window", 10*time.Minute)
	v.SetDefault("lockout.ip_lock_duration", 10*time.Minute)
	v.SetDefault("lockout.sweep_interval", 10*time.Minute)

	v.SetDefault("totp.issuer", "FitVibe")
	v.SetDefault("totp.skew", 1)
}
