// package config is the explicit configuration value threaded into a
// client. nothing in here is global: a config is loaded, validated and
// handed to the client, which copies what it needs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/frankli0324/go-fetch/internal/dialer"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/validate"
)

// EnvPrefix prefixes every environment override, e.g. GOFETCH_TIMEOUT.
const EnvPrefix = "GOFETCH_"

// ProxyFromEnv as the proxy setting defers to HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY.
const ProxyFromEnv = "env"

type Config struct {
	UserAgent       string            `yaml:"user_agent"`
	Accept          string            `yaml:"accept"`
	AcceptEncoding  string            `yaml:"accept_encoding"`
	Headers         map[string]string `yaml:"headers" validate:"dive,keys,token,endkeys"`
	Follow          int               `yaml:"follow" validate:"gte=0"`
	Timeout         time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxSize         Size              `yaml:"max_size" validate:"gte=0"`
	DisableCompress bool              `yaml:"disable_compress"`
	Proxy           string            `yaml:"proxy" validate:"omitempty,url|eq=env"`

	Throttle Throttle              `yaml:"throttle"`
	Resolve  *dialer.ResolveConfig `yaml:"resolve"`
	Socket   *dialer.SocketOptions `yaml:"socket"`
}

type Throttle struct {
	RPS   int `yaml:"rps" validate:"gte=0"`
	Burst int `yaml:"burst" validate:"gte=0,required_with=RPS"`
}

// Size is a byte count written either as a plain number or in a human
// readable form such as "10MB" or "4 KiB".
type Size int64

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	n, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = n
	return nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

func ParseSize(v string) (Size, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", v, err)
	}
	return Size(n), nil
}

// Default mirrors the defaults of a zero value client.
func Default() *Config {
	d := http.StandardHeaders()
	return &Config{
		UserAgent:      d.UserAgent,
		Accept:         d.Accept,
		AcceptEncoding: d.AcceptEncoding,
		Follow:         http.DefaultRequest().Follow,
	}
}

// LoadEnv loads .env style files into the process environment. Missing
// files are skipped, existing variables are never overwritten.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at path on top of [Default], applies
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv overrides c with the GOFETCH_* variables reported by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	env := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	var err error
	if v, ok := env("USER_AGENT"); ok {
		c.UserAgent = v
	}
	if v, ok := env("PROXY"); ok {
		c.Proxy = v
	}
	if v, ok := env("FOLLOW"); ok {
		if c.Follow, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%sFOLLOW: %w", EnvPrefix, err)
		}
	}
	if v, ok := env("TIMEOUT"); ok {
		if c.Timeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
	}
	if v, ok := env("MAX_SIZE"); ok {
		if c.MaxSize, err = ParseSize(v); err != nil {
			return fmt.Errorf("%sMAX_SIZE: %w", EnvPrefix, err)
		}
	}
	if v, ok := env("DISABLE_COMPRESS"); ok {
		if c.DisableCompress, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%sDISABLE_COMPRESS: %w", EnvPrefix, err)
		}
	}
	if v, ok := env("DNS_SERVER"); ok {
		if c.Resolve == nil {
			c.Resolve = &dialer.ResolveConfig{}
		}
		c.Resolve.CustomDNSServer = v
	}
	return nil
}

// RequestDefaults are the per-request defaults derived from c.
func (c *Config) RequestDefaults() http.Defaults {
	d := http.DefaultRequest()
	d.Follow = c.Follow
	d.Compress = !c.DisableCompress
	d.Timeout = c.Timeout
	d.MaxSize = int64(c.MaxSize)
	return d
}

func (c *Config) DefaultHeaders() http.DefaultHeaders {
	return http.DefaultHeaders{
		Accept:         c.Accept,
		UserAgent:      c.UserAgent,
		AcceptEncoding: c.AcceptEncoding,
		Extra:          c.Headers,
	}
}

// Dialer builds the connection dialer described by c.
func (c *Config) Dialer() *dialer.CoreDialer {
	d := &dialer.CoreDialer{
		ResolveConfig: c.Resolve.Clone(),
		Socket:        c.Socket.Clone(),
	}
	switch c.Proxy {
	case "":
	case ProxyFromEnv:
		d.GetProxy = dialer.EnvironmentProxy()
	default:
		d.GetProxy = dialer.StaticProxy(c.Proxy)
	}
	return d
}
