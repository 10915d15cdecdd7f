package ddpush

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 4*time.Second, cfg.SocketTimeout)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		Destinations:    []string{"ftp://example.com/series", "https://app.datadoghq.com/api/v1/series?api_key=KEY"},
		Prefix:          strings.Repeat("p", MaxPrefixLen+1),
		MaxPayloadBytes: -1,
	}

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 6, "every problem should be reported: %v", err)
	assert.Contains(t, err.Error(), "metrics prefix too long, max 15 chars")
	assert.Contains(t, err.Error(), `unsupported scheme "ftp"`)

	cfg = Config{
		Prefix:        strings.Repeat("p", MaxPrefixLen),
		Hostname:      "h",
		Interval:      time.Second,
		SocketTimeout: time.Second,
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddpush.yaml")
	data := `
destinations:
  - https://app.datadoghq.com/api/v1/series?api_key=KEY
prefix: "app."
hostname: web-1
canonical_hostname: true
interval: 30s
socket_timeout: 2s
insecure_skip_verify: false
max_payload_bytes: 65536
system_metrics: true
dns:
  timeout: 1s
  udp_servers: ["127.0.0.1:53"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.datadoghq.com/api/v1/series?api_key=KEY"}, cfg.Destinations)
	assert.Equal(t, "app.", cfg.Prefix)
	assert.Equal(t, "web-1", cfg.Hostname)
	assert.True(t, cfg.CanonicalHostname)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Second, cfg.SocketTimeout)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 65536, cfg.MaxPayloadBytes)
	assert.True(t, cfg.SystemMetrics)
	assert.Equal(t, time.Second, cfg.DNS.Timeout)
	assert.Equal(t, []string{"127.0.0.1:53"}, cfg.DNS.UDPServers)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prefix: [unterminated"), 0o600))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config")

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hostname: h\nprefix: this-prefix-is-too-long\n"), 0o600))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://app.datadoghq.com/api/v1/series?api_key=SECRET&foo=bar")
	assert.NotContains(t, got, "SECRET")
	assert.Contains(t, got, "api_key=REDACTED")
	assert.Contains(t, got, "foo=bar")

	assert.Equal(t, "http://localhost:8125/series", redactURL("http://localhost:8125/series"))
}
