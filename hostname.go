package ddpush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// HostnameResolver finds the canonical DNS name of a host.
type HostnameResolver struct {
	cfg    DNSConfig
	logger *zap.Logger
}

// NewHostnameResolver creates a resolver. Without explicit servers in cfg
// the system resolver is used.
func NewHostnameResolver(cfg DNSConfig, logger *zap.Logger) *HostnameResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Timeout = pickDuration(cfg.Timeout, 800*time.Millisecond)
	return &HostnameResolver{cfg: cfg, logger: logger}
}

func pickDuration(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// CanonicalOrEmpty resolves host and returns "" on failure. Failures are
// logged and never abort startup.
func (h *HostnameResolver) CanonicalOrEmpty(ctx context.Context, host string) string {
	name, err := h.Canonical(ctx, host)
	if err != nil {
		h.logger.Warn("unable to get canonical name for hostname",
			zap.String("hostname", host), zap.Error(err))
		return ""
	}
	h.logger.Debug("resolved canonical hostname",
		zap.String("hostname", host), zap.String("canonical", name))
	return name
}

// Canonical queries all configured resolvers concurrently and returns the
// first successful answer, without the trailing dot.
func (h *HostnameResolver) Canonical(ctx context.Context, host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("empty hostname")
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	type result struct {
		name string
		err  error
	}

	var lookups []func(context.Context) (string, error)
	for _, srv := range h.cfg.UDPServers {
		s := srv
		lookups = append(lookups, func(ctx context.Context) (string, error) {
			return resolveExchange(ctx, host, s, "udp", h.cfg.Timeout)
		})
	}
	for _, srv := range h.cfg.TLSServers {
		s := srv
		lookups = append(lookups, func(ctx context.Context) (string, error) {
			return resolveExchange(ctx, host, s, "tcp-tls", h.cfg.Timeout)
		})
	}
	for _, ep := range h.cfg.DoHEndpoints {
		e := ep
		lookups = append(lookups, func(ctx context.Context) (string, error) {
			return resolveDoH(ctx, host, e)
		})
	}
	if len(lookups) == 0 {
		lookups = append(lookups, func(ctx context.Context) (string, error) {
			return resolveSystem(ctx, host)
		})
	}

	ch := make(chan result, len(lookups))
	var wg sync.WaitGroup
	for _, lookup := range lookups {
		fn := lookup
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := fn(ctx)
			ch <- result{name, err}
		}()
	}

	var firstErr error
	for i := 0; i < len(lookups); i++ {
		select {
		case r := <-ch:
			if r.err == nil && r.name != "" {
				return r.name, nil
			}
			if firstErr == nil {
				firstErr = r.err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	wg.Wait()
	if firstErr == nil {
		firstErr = fmt.Errorf("no dns result")
	}
	return "", firstErr
}

func resolveSystem(ctx context.Context, host string) (string, error) {
	cname, err := net.DefaultResolver.LookupCNAME(ctx, host)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(cname, "."), nil
}

func resolveExchange(ctx context.Context, host, server, network string, timeout time.Duration) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	c := &dns.Client{Net: network, Timeout: timeout}
	r, _, err := c.ExchangeContext(ctx, m, server)
	if err != nil {
		return "", fmt.Errorf("%s dns failed: %w", network, err)
	}
	return canonicalFromMsg(host, r)
}

func resolveDoH(ctx context.Context, host, endpoint string) (string, error) {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(host), dns.TypeA)
	payload, err := q.Pack()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("doh status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var r dns.Msg
	if err := r.Unpack(body); err != nil {
		return "", err
	}
	return canonicalFromMsg(host, &r)
}

// canonicalFromMsg follows the CNAME chain in an answer section starting at
// host. A host that resolves without aliases is its own canonical name.
func canonicalFromMsg(host string, r *dns.Msg) (string, error) {
	if r == nil {
		return "", fmt.Errorf("empty dns response")
	}
	if r.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("dns rcode: %s", dns.RcodeToString[r.Rcode])
	}

	name := dns.Fqdn(host)
	resolved := false
	for hops := 0; hops <= len(r.Answer); hops++ {
		next := ""
		for _, ans := range r.Answer {
			if !strings.EqualFold(ans.Header().Name, name) {
				continue
			}
			switch rr := ans.(type) {
			case *dns.CNAME:
				next = rr.Target
			case *dns.A, *dns.AAAA:
				resolved = true
			}
		}
		if next == "" {
			break
		}
		name = next
	}
	if !resolved {
		return "", fmt.Errorf("no address records for %s", host)
	}
	return strings.TrimSuffix(name, "."), nil
}
