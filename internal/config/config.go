// Package config loads the service's settings from a file plus environment
// overrides, per the key table in the RTA protocol's external interfaces.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the enforcement endpoint's bind address and TLS material.
type ServerConfig struct {
	Host     string
	Port     int
	CertPath string
	KeyPath  string
}

// Addr renders the host:port the QUIC listener should bind.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TokenConfig controls RTA token validation.
type TokenConfig struct {
	MaxAgeSecs int64
}

// MaxAge returns the configured expiry window as a time.Duration.
func (t TokenConfig) MaxAge() time.Duration {
	return time.Duration(t.MaxAgeSecs) * time.Second
}

// RedisConfig is the revocation pub/sub broker and token repository backend.
type RedisConfig struct {
	URL string
}

// IdpProvider describes one OAuth introspection endpoint.
type IdpProvider struct {
	IntrospectionURL string
	ClientID         string
	ClientSecret     string
}

// IdpProviders is the provider registry keyed by provider name, plus a
// fallback default key.
type IdpProviders struct {
	Default string
	Azure   IdpProvider
	Okta    IdpProvider
	Auth0   IdpProvider
}

// Resolve looks up a provider key, falling back to Default when key is
// empty. Returns false if the resolved key is not a known provider.
func (p IdpProviders) Resolve(key string) (IdpProvider, bool) {
	if key == "" {
		key = p.Default
	}
	switch key {
	case "azure":
		return p.Azure, true
	case "okta":
		return p.Okta, true
	case "auth0":
		return p.Auth0, true
	default:
		return IdpProvider{}, false
	}
}

// PdpConfig is reserved for a future policy decision point integration; the
// core never reads it.
type PdpConfig struct {
	Endpoint string
}

// ExchangeConfig is the token-exchange endpoint's bind address.
type ExchangeConfig struct {
	Host string
	Port int
}

// Addr renders the host:port the exchange QUIC listener should bind.
func (e ExchangeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Settings is the fully resolved configuration record.
type Settings struct {
	Server   ServerConfig
	Exchange ExchangeConfig
	Token    TokenConfig
	Redis    RedisConfig
	Idp      IdpProviders
	Pdp      PdpConfig
	LogLevel string
}

// Load reads settings from the named config file (without extension, viper
// resolves yaml/json/toml) plus environment variable overrides, the same
// pattern the rest of the stack uses for its own service bootstrap.
func Load(configName string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8443)
	v.SetDefault("exchange.host", "0.0.0.0")
	v.SetDefault("exchange.port", 8082)
	v.SetDefault("token.max_age_secs", 3600)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("idp.default", "azure")
	v.SetDefault("log.level", "info")

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	v.SetEnvPrefix("rta")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	s := &Settings{
		Server: ServerConfig{
			Host:     v.GetString("server.host"),
			Port:     v.GetInt("server.port"),
			CertPath: v.GetString("server.cert_path"),
			KeyPath:  v.GetString("server.key_path"),
		},
		Exchange: ExchangeConfig{
			Host: v.GetString("exchange.host"),
			Port: v.GetInt("exchange.port"),
		},
		Token: TokenConfig{
			MaxAgeSecs: v.GetInt64("token.max_age_secs"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Idp: IdpProviders{
			Default: v.GetString("idp.default"),
			Azure: IdpProvider{
				IntrospectionURL: v.GetString("idp.azure.introspection_url"),
				ClientID:         v.GetString("idp.azure.client_id"),
				ClientSecret:     v.GetString("idp.azure.client_secret"),
			},
			Okta: IdpProvider{
				IntrospectionURL: v.GetString("idp.okta.introspection_url"),
				ClientID:         v.GetString("idp.okta.client_id"),
				ClientSecret:     v.GetString("idp.okta.client_secret"),
			},
			Auth0: IdpProvider{
				IntrospectionURL: v.GetString("idp.auth0.introspection_url"),
				ClientID:         v.GetString("idp.auth0.client_id"),
				ClientSecret:     v.GetString("idp.auth0.client_secret"),
			},
		},
		Pdp: PdpConfig{
			Endpoint: v.GetString("pdp.endpoint"),
		},
		LogLevel: v.GetString("log.level"),
	}

	return s, nil
}
