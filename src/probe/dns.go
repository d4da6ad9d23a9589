// Package probe contains the single-shot network tests the launcher runs to
// learn about the host before lokinet is configured: which interface
// traffic leaves by, which address the internet sees, where a DNS server
// can bind, and which of the system resolvers are safe to forward to.
//
// Every operation is bounded by Timeout and none of them keep state. The
// launcher runs them on their own goroutines and posts the results back to
// its actor.
package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/miekg/dns"
)

// Querier sends one A query for name to server ("ip" or "ip:port", port 53
// if omitted). A well-formed reply is returned whatever its rcode; only a
// transport failure is an error.
type Querier interface {
	Query(ctx context.Context, server, name string) (*dns.Msg, error)
}

// DNSClient is the Querier used outside of tests.
type DNSClient struct {
	// Net is "udp" (the default) or "tcp".
	Net string
}

// Query implements Querier.
func (c *DNSClient) Query(ctx context.Context, server, name string) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	client := &dns.Client{Net: c.Net, Timeout: Timeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true
	reply, _, err := client.ExchangeContext(ctx, msg, WithPort(server, 53))
	if err != nil {
		return nil, fmt.Errorf("query %s via %s: %w", name, server, err)
	}
	return reply, nil
}

// Addresses returns the A records of a reply.
func Addresses(reply *dns.Msg) []net.IP {
	if reply == nil {
		return nil
	}
	var ips []net.IP
	for _, rr := range reply.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A)
		}
	}
	return ips
}

// WithPort adds port to addr unless it already carries one.
func WithPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// Host strips an optional port from addr.
func Host(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// SystemResolvers reads the nameservers listed in a resolv.conf style file,
// in file order. Resolvers on a port other than 53 keep their port.
func SystemResolvers(path string) ([]string, error) {
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, server := range conf.Servers {
		if conf.Port != "" && conf.Port != "53" {
			server = net.JoinHostPort(server, conf.Port)
		}
		servers = append(servers, server)
	}
	return servers, nil
}
