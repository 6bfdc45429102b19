package config

import "time"

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type AuthConfig struct {
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	VerifyPoolSize  int           `mapstructure:"verify_pool_size"`
}

// CookieConfig controls optional refresh-token cookie transport.
type CookieConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Name     string `mapstructure:"name"`
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

type KeysConfig struct {
	OverlapWindow    time.Duration `mapstructure:"overlap_window"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
}

type LockoutConfig struct {
	AccountMaxAttempts  int           `mapstructure:"account_max_attempts"`
	AccountWindow       time.Duration `mapstructure:"account_window"`
	AccountLockDuration time.Duration `mapstructure:"account_lock_duration"`
	IPMaxAttempts       int           `mapstructure:"ip_max_attempts"`
	IPWindow            time.Duration `mapstructure:"ip_window"`
	IPLockDuration      time.Duration `mapstructure:"ip_lock_duration"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

type TOTPConfig struct {
	Issuer string `mapstructure:"issuer"`
	Skew   uint   `mapstructure:"skew"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cookie   CookieConfig   `mapstructure:"cookie"`
	Keys     KeysConfig     `mapstructure:"keys"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	TOTP     TOTPConfig     `mapstructure:"totp"`
}
