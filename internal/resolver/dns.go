package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Server is a named upstream DNS server
type Server struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// PublicServers are the public resolvers used for cross-validation
var PublicServers = []Server{
	{Name: "Google", Addr: "8.8.8.8:53"},
	{Name: "Cloudflare", Addr: "1.1.1.1:53"},
	{Name: "Quad9", Addr: "9.9.9.9:53"},
	{Name: "OpenDNS", Addr: "208.67.222.222:53"},
}

// ParseServers turns "ip" or "ip:port" strings into Servers, defaulting to port 53
func ParseServers(addrs []string) []Server {
	servers := make([]Server, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(a); err != nil {
			a = net.JoinHostPort(a, "53")
		}
		servers = append(servers, Server{Name: a, Addr: a})
	}
	return servers
}

// DNSResolver queries explicit upstream servers with miekg/dns.
// Servers are tried in order; the next one is used only when the previous
// failed to give a definitive answer.
type DNSResolver struct {
	client  *dns.Client
	servers []Server
}

// NewDNSResolver creates a resolver for the given servers.
// An empty server list falls back to PublicServers.
func NewDNSResolver(servers []Server, timeout time.Duration) *DNSResolver {
	if len(servers) == 0 {
		servers = PublicServers
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
	}
}

// Servers returns the configured upstream servers
func (r *DNSResolver) Servers() []Server {
	return r.servers
}

// Query sends a single question to one server
func (r *DNSResolver) Query(ctx context.Context, server Server, host string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, server.Addr)
	if err != nil {
		return nil, fmt.Errorf("query %s %s via %s: %w", dns.TypeToString[qtype], host, server.Name, err)
	}
	return resp, nil
}

// Resolve asks for A and AAAA records. NXDOMAIN from any server is final;
// transport errors and SERVFAIL move on to the next server.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (Answer, error) {
	var lastErr error

	for _, server := range r.servers {
		if err := ctx.Err(); err != nil {
			return Answer{Host: host}, err
		}

		ans, err := r.resolveWith(ctx, server, host)
		if err == nil {
			return ans, nil
		}
		if !IsTransient(err) {
			return ans, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("resolve %s: no servers configured", host)
	}
	return Answer{Host: host}, lastErr
}

// resolveWith asks one server for A then AAAA. A failed query only matters
// when the other one produced nothing either.
func (r *DNSResolver) resolveWith(ctx context.Context, server Server, host string) (Answer, error) {
	ans := Answer{Host: host}
	var failures []error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		resp, err := r.Query(ctx, server, host, qtype)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return Answer{Host: host}, fmt.Errorf("resolve %s: %w", host, ErrNotFound)
		default:
			failures = append(failures, fmt.Errorf("resolve %s %s via %s: rcode %s",
				dns.TypeToString[qtype], host, server.Name, dns.RcodeToString[resp.Rcode]))
			continue
		}

		for _, rr := range resp.Answer {
			switch v := rr.(type) {
			case *dns.A:
				ans.Addresses = append(ans.Addresses, v.A.String())
			case *dns.AAAA:
				ans.Addresses = append(ans.Addresses, v.AAAA.String())
			case *dns.CNAME:
				if ans.CNAME == "" {
					ans.CNAME = strings.TrimSuffix(strings.ToLower(v.Target), ".")
				}
			}
		}
	}

	switch {
	case ans.Found():
		return ans, nil
	case len(failures) == 2:
		return ans, errors.Join(failures...)
	default:
		// NOERROR with no data
		return ans, fmt.Errorf("resolve %s: %w", host, ErrNotFound)
	}
}
