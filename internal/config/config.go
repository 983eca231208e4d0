package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// CryptoKey is the base64-encoded 32-byte key for message body
	// encryption at rest.
	CryptoKey string `mapstructure:"crypto_key" yaml:"crypto_key"`

	// NotifyInterval is the unread-poll period of notification sessions.
	NotifyInterval time.Duration `mapstructure:"notify_interval" yaml:"notify_interval"`

	// WSRateLimit caps inbound frames per connection per minute. Zero
	// disables the limit.
	WSRateLimit int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "privchat.db",
		LogLevel:          "info",
		JWTIssuer:         "privchat",
		JWTAudience:       "privchat",
		JWTTTL:            24 * time.Hour,
		NotifyInterval:    3 * time.Second,
		WSRateLimit:       120,
	}
}
