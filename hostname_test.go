package ddpush

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func TestCanonicalFromMsg(t *testing.T) {
	tests := []struct {
		name    string
		answer  []string
		rcode   int
		want    string
		wantErr bool
	}{
		{
			name:   "no alias",
			answer: []string{"web-1.example.com. 300 IN A 10.0.0.1"},
			want:   "web-1.example.com",
		},
		{
			name: "cname chain",
			answer: []string{
				"web-1.example.com. 300 IN CNAME lb.example.net.",
				"lb.example.net. 300 IN CNAME edge.example.org.",
				"edge.example.org. 300 IN A 10.0.0.2",
			},
			want: "edge.example.org",
		},
		{
			name:    "dangling alias",
			answer:  []string{"web-1.example.com. 300 IN CNAME lb.example.net."},
			wantErr: true,
		},
		{
			name:    "nxdomain",
			rcode:   dns.RcodeNameError,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := new(dns.Msg)
			msg.SetQuestion("web-1.example.com.", dns.TypeA)
			msg.Rcode = tt.rcode
			for _, a := range tt.answer {
				msg.Answer = append(msg.Answer, mustRR(t, a))
			}

			got, err := canonicalFromMsg("web-1.example.com", msg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// startDNSServer serves answers for "web-1.example.com." on a local UDP port.
func startDNSServer(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	answer := []dns.RR{
		mustRR(t, "web-1.example.com. 60 IN CNAME web-1.prod.example.com."),
		mustRR(t, "web-1.prod.example.com. 60 IN A 10.1.2.3"),
	}

	mux := dns.NewServeMux()
	mux.HandleFunc("example.com.", func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		if req.Question[0].Name == "web-1.example.com." {
			resp.Answer = append(resp.Answer, answer...)
		} else {
			resp.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(resp)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestHostnameResolverUDP(t *testing.T) {
	addr := startDNSServer(t)
	resolver := NewHostnameResolver(DNSConfig{
		Timeout:    time.Second,
		UDPServers: []string{addr},
	}, zaptest.NewLogger(t))

	name, err := resolver.Canonical(context.Background(), "web-1.example.com")
	require.NoError(t, err)
	assert.Equal(t, "web-1.prod.example.com", name)

	assert.Empty(t, resolver.CanonicalOrEmpty(context.Background(), "missing.example.com"),
		"resolution failures yield an empty canonical name")
}

func TestHostnameResolverEmptyHost(t *testing.T) {
	_, err := NewHostnameResolver(DNSConfig{}, nil).Canonical(context.Background(), "")
	assert.Error(t, err)
}
