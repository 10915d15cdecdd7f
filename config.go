package ddpush

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v4"
)

// MaxPrefixLen is the longest accepted metric name prefix, in bytes.
const MaxPrefixLen = 15

// Config defines the configuration for the pusher system
type Config struct {
	// Destinations lists the series endpoints, API key included, e.g.
	// https://app.datadoghq.com/api/v1/series?api_key=KEY. Each gets its own pusher.
	Destinations []string `yaml:"destinations"`

	// Naming and tagging
	Prefix            string `yaml:"prefix"`
	Hostname          string `yaml:"hostname"`
	CanonicalHostname bool   `yaml:"canonical_hostname"`

	// Delivery
	Interval      time.Duration `yaml:"interval"`
	SocketTimeout time.Duration `yaml:"socket_timeout"`

	// InsecureSkipVerify disables TLS certificate and hostname checks on
	// delivery. The endpoint is authenticated by the API key in its URL.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// MaxPayloadBytes bounds the encoded payload; 0 means unbounded.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// Built-in collectors and self metrics
	SystemMetrics bool   `yaml:"system_metrics"`
	MetricsListen string `yaml:"metrics_listen"`

	DNS DNSConfig `yaml:"dns"`

	// Optional logger
	Logger *zap.Logger `yaml:"-"`
}

// DNSConfig selects the resolvers used for canonical hostname lookup.
// With no servers configured the system resolver is used.
type DNSConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UDPServers   []string      `yaml:"udp_servers"`   // e.g. ["1.1.1.1:53", "8.8.8.8:53"]
	TLSServers   []string      `yaml:"tls_servers"`   // e.g. ["1.1.1.1:853", "9.9.9.9:853"]
	DoHEndpoints []string      `yaml:"doh_endpoints"` // e.g. ["https://cloudflare-dns.com/dns-query"]
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	host, _ := os.Hostname()
	return Config{
		Hostname:           host,
		Interval:           10 * time.Second,
		SocketTimeout:      4 * time.Second,
		InsecureSkipVerify: true,
		DNS: DNSConfig{
			Timeout: 800 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err error

	if len(c.Prefix) > MaxPrefixLen {
		err = multierr.Append(err, fmt.Errorf("metrics prefix too long, max %d chars", MaxPrefixLen))
	}
	if c.Hostname == "" {
		err = multierr.Append(err, errors.New("hostname cannot be empty"))
	}
	if c.Interval <= 0 {
		err = multierr.Append(err, errors.New("interval must be positive"))
	}
	if c.SocketTimeout <= 0 {
		err = multierr.Append(err, errors.New("socket timeout must be positive"))
	}
	if c.MaxPayloadBytes < 0 {
		err = multierr.Append(err, errors.New("max payload bytes cannot be negative"))
	}
	for _, dest := range c.Destinations {
		u, perr := url.Parse(dest)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("destination %q: %w", redactURL(dest), perr))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			err = multierr.Append(err, fmt.Errorf("destination %q: unsupported scheme %q", redactURL(dest), u.Scheme))
		}
	}
	return err
}

// ExportConfig is the per-process naming and tagging state of the export
// cycle. It is built once at startup and never modified.
type ExportConfig struct {
	prefix       string
	hostname     string
	canonical    string
	useCanonical bool
}

// NewExportConfig captures the export settings. canonical is the resolved
// canonical hostname, empty when resolution failed.
func NewExportConfig(prefix, hostname, canonical string, useCanonical bool) ExportConfig {
	return ExportConfig{
		prefix:       prefix,
		hostname:     hostname,
		canonical:    canonical,
		useCanonical: useCanonical,
	}
}

// Prefix returns the string prepended to every metric name
func (e ExportConfig) Prefix() string {
	return e.prefix
}

// HostTag returns the canonical hostname when it was requested and resolved,
// and the configured hostname otherwise.
func (e ExportConfig) HostTag() string {
	if e.useCanonical && e.canonical != "" {
		return e.canonical
	}
	return e.hostname
}

// redactURL hides the api_key query value so destinations can be logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	for _, key := range []string{"api_key", "application_key"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
