package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileVar names the optional YAML file read by Load when no path is given.
const ConfigFileVar = "SESSION_CONFIG"

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
	StoreConfig
}

type EnvConfig interface {
	GetHost() string
	GetPort() string
	GetListenAddr() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type IdentityConfig interface {
	GetIdentityURL() string
	GetIdentityKind() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCAdminRole() string
}

type SessionConfig interface {
	GetRenewInterval() time.Duration
	GetDefaultLease() time.Duration
	GetLoginPath() string
	GetUserAgent() string
}

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetStorePrefix() string
	GetRedisURL() string
}

// Settings is the raw configuration. Values come from defaults, then the
// YAML file, then the environment.
type Settings struct {
	AppName  string `yaml:"app_name"  env:"APP_NAME"`
	Env      string `yaml:"env"       env:"ENV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	Host     string `yaml:"host"      env:"HOST"`
	Port     string `yaml:"port"      env:"PORT"`

	Identity IdentitySettings `yaml:"identity"`
	Session  SessionSettings  `yaml:"session"`
	Store    StoreSettings    `yaml:"store"`
}

type IdentitySettings struct {
	URL          string `yaml:"url"           env:"IDENTITY_URL"`
	DirectusURL  string `yaml:"-"             env:"DIRECTUS_URL"`
	Kind         string `yaml:"kind"          env:"IDENTITY_KIND"`
	ClientID     string `yaml:"client_id"     env:"OIDC_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"OIDC_CLIENT_SECRET"`
	AdminRole    string `yaml:"admin_role"    env:"OIDC_ADMIN_ROLE"`
}

type SessionSettings struct {
	RenewInterval time.Duration `yaml:"renew_interval" env:"SESSION_RENEW_INTERVAL"`
	DefaultLease  time.Duration `yaml:"default_lease"  env:"SESSION_DEFAULT_LEASE"`
	LoginPath     string        `yaml:"login_path"     env:"SESSION_LOGIN_PATH"`
	UserAgent     string        `yaml:"user_agent"     env:"SESSION_USER_AGENT"`
}

type StoreSettings struct {
	Backend  string `yaml:"backend"   env:"STORE_BACKEND"`
	Path     string `yaml:"path"      env:"STORE_PATH"`
	Prefix   string `yaml:"prefix"    env:"STORE_PREFIX"`
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

const (
	IdentityREST = "rest"
	IdentityOIDC = "oidc"

	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreNone   = "none"

	defaultIdentityURL = "http://localhost:8055"
)

var _ Config = (*Settings)(nil)

// Load builds the configuration. path names an optional YAML file; when empty
// the file named by SESSION_CONFIG is used, if any.
func Load(path string) (*Settings, error) {
	cfg := defaultSettings()

	if path == "" {
		path = os.Getenv(ConfigFileVar)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultSettings() *Settings {
	return &Settings{
		AppName:  "Session CLI",
		Env:      "DEV",
		LogLevel: "info",
		Host:     "127.0.0.1",
		Port:     "8080",
		Identity: IdentitySettings{
			Kind: IdentityREST,
		},
		Session: SessionSettings{
			RenewInterval: 5 * time.Minute,
			DefaultLease:  15 * time.Minute,
			LoginPath:     "/login",
			UserAgent:     "sessionctl",
		},
		Store: StoreSettings{
			Backend: StoreFile,
			Prefix:  "session",
		},
	}
}

// Validate checks enumerations and required combinations.
func (s *Settings) Validate() error {
	var errs []string

	switch s.Identity.Kind {
	case IdentityREST:
	case IdentityOIDC:
		if s.Identity.ClientID == "" {
			errs = append(errs, "identity.client_id is required for oidc")
		}
		if s.Identity.URL == "" && s.Identity.DirectusURL == "" {
			errs = append(errs, "identity.url is required for oidc")
		}
	default:
		errs = append(errs, fmt.Sprintf("identity.kind %q must be rest or oidc", s.Identity.Kind))
	}

	switch s.Store.Backend {
	case StoreFile, StoreSQLite, StoreMemory, StoreNone:
	case StoreRedis:
		if s.Store.RedisURL == "" {
			errs = append(errs, "store.redis_url is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not supported", s.Store.Backend))
	}

	if s.Session.RenewInterval <= 0 {
		errs = append(errs, "session.renew_interval must be positive")
	}
	if s.Session.DefaultLease <= 0 {
		errs = append(errs, "session.default_lease must be positive")
	}
	if !strings.HasPrefix(s.Session.LoginPath, "/") {
		errs = append(errs, "session.login_path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Settings) GetPort() string {
	port := s.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (s *Settings) GetHost() string {
	return s.Host
}

// GetListenAddr joins host and port. The default host is loopback; set HOST
// to 0.0.0.0 to accept connections from other machines.
func (s *Settings) GetListenAddr() string {
	return net.JoinHostPort(s.Host, strings.TrimPrefix(s.Port, ":"))
}

func (s *Settings) GetAppName() string {
	return s.AppName
}

func (s *Settings) GetEnv() string {
	return s.Env
}

func (s *Settings) GetLogLevel() string {
	return s.LogLevel
}

// GetIdentityURL returns IDENTITY_URL, falling back to DIRECTUS_URL and then
// a local Directus instance.
func (s *Settings) GetIdentityURL() string {
	switch {
	case s.Identity.URL != "":
		return s.Identity.URL
	case s.Identity.DirectusURL != "":
		return s.Identity.DirectusURL
	}
	return defaultIdentityURL
}

func (s *Settings) GetIdentityKind() string {
	return s.Identity.Kind
}

func (s *Settings) GetOIDCClientID() string {
	return s.Identity.ClientID
}

func (s *Settings) GetOIDCClientSecret() string {
	return s.Identity.ClientSecret
}

func (s *Settings) GetOIDCAdminRole() string {
	return s.Identity.AdminRole
}

func (s *Settings) GetRenewInterval() time.Duration {
	return s.Session.RenewInterval
}

func (s *Settings) GetDefaultLease() time.Duration {
	return s.Session.DefaultLease
}

func (s *Settings) GetLoginPath() string {
	return s.Session.LoginPath
}

func (s *Settings) GetUserAgent() string {
	return s.Session.UserAgent
}

func (s *Settings) GetStoreBackend() string {
	return s.Store.Backend
}

// GetStorePath returns the configured path or a per-user default that
// depends on the backend.
func (s *Settings) GetStorePath() string {
	if s.Store.Path != "" {
		return s.Store.Path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "session.json"
	if s.Store.Backend == StoreSQLite {
		name = "session.db"
	}
	return dir + string(os.PathSeparator) + "sessionctl" + string(os.PathSeparator) + name
}

func (s *Settings) GetStorePrefix() string {
	return s.Store.Prefix
}

func (s *Settings) GetRedisURL() string {
	return s.Store.RedisURL
}
