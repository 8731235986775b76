package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		BaseURL      string `yaml:"base_url"` // external URL, usado para armar callback endpoints
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// Webflow: estado de correlación entre redirect y callback.
	Webflow struct {
		TTL string `yaml:"ttl"` // ventana de validez del correlation token
	} `yaml:"webflow"`

	// Assertion: JWT firmado que se entrega al pipeline de autenticación.
	Assertion struct {
		Issuer     string `yaml:"issuer"`
		TTL        string `yaml:"ttl"`
		CodeTTL    string `yaml:"code_ttl"`    // TTL del result code de un solo uso
		SigningKey string `yaml:"signing_key"` // base64(ed25519 seed); vacío => efímera
	} `yaml:"assertion"`

	Logout struct {
		Timeout string `yaml:"timeout"` // timeout por provider en la propagación
	} `yaml:"logout"`

	// Policy: de dónde se resuelve la política de delegación por service.
	Policy struct {
		Source   string `yaml:"source"` // static | postgres
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
		Services []ServicePolicy `yaml:"services"`
	} `yaml:"policy"`

	// Strategy: selección de provider(s). Si override está seteado, se antepone
	// a la estrategia default en la cadena.
	Strategy struct {
		Override string `yaml:"override"` // "" | disabled
	} `yaml:"strategy"`

	Providers []Provider `yaml:"providers"`
}

// ServicePolicy es la política de delegación de un service (modo static).
type ServicePolicy struct {
	Service           string   `yaml:"service"`
	DelegationEnabled bool     `yaml:"delegation_enabled"`
	AllowedProviders  []string `yaml:"allowed_providers"` // vacío => any
}

// Provider es la configuración de un identity provider externo.
type Provider struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Kind        string `yaml:"kind"` // oidc | oauth2 | cas | saml
	Enabled     bool   `yaml:"enabled"`

	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"` // cifrado con secretbox, o plano en dev
	Scopes       []string `yaml:"scopes"`

	// OIDC
	Issuer string `yaml:"issuer"`

	// OAuth2 plano (GitHub-style)
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserinfoURL string `yaml:"userinfo_url"`

	// CAS
	BaseURL string `yaml:"base_url"`

	// Logout endpoint explícito (si el provider no lo publica via discovery)
	LogoutEndpoint string `yaml:"logout_endpoint"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv permite overrides puntuales por variables de entorno (deploys).
func (c *Config) applyEnv() {
	if v := os.Getenv("DELEGA_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DELEGA_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("DELEGA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DELEGA_CACHE_KIND"); v != "" {
		c.Cache.Kind = v
	}
	if v := os.Getenv("DELEGA_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("DELEGA_POLICY_PG_DSN"); v != "" {
		c.Policy.Postgres.DSN = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8084"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost" + c.Server.Addr
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Webflow.TTL == "" {
		c.Webflow.TTL = "2m"
	}
	if c.Assertion.Issuer == "" {
		c.Assertion.Issuer = "delega"
	}
	if c.Assertion.TTL == "" {
		c.Assertion.TTL = "2m"
	}
	if c.Assertion.CodeTTL == "" {
		c.Assertion.CodeTTL = "60s"
	}
	if c.Logout.Timeout == "" {
		c.Logout.Timeout = "3s"
	}
	if c.Policy.Source == "" {
		c.Policy.Source = "static"
	}
}

func (c *Config) validate() error {
	switch c.Policy.Source {
	case "static":
	case "postgres":
		if c.Policy.Postgres.DSN == "" {
			return fmt.Errorf("config: policy.source=postgres requiere policy.postgres.dsn")
		}
	default:
		return fmt.Errorf("config: policy.source inválido: %q", c.Policy.Source)
	}
	seen := map[string]bool{}
	for i, p := range c.Providers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("config: providers[%d] sin name", i)
		}
		if seen[name] {
			return fmt.Errorf("config: provider duplicado: %q", name)
		}
		seen[name] = true
		switch p.Kind {
		case "oidc", "oauth2", "cas", "saml":
		default:
			return fmt.Errorf("config: provider %q kind inválido: %q", name, p.Kind)
		}
	}
	return nil
}

// Dur parsea una duración de config con fallback.
func Dur(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
