package probe

import (
	"context"
	"errors"
	"net"

	"github.com/miekg/dns"
)

// ErrNoFreeDNSPort is returned when every candidate already answers DNS.
var ErrNoFreeDNSPort = errors.New("no free address for a DNS server on port 53")

// FindFreeDNSPort returns the first candidate on which nothing answers DNS
// on port 53, testing them strictly in order. Any well-formed reply, even a
// negative one, means the port is taken.
func FindFreeDNSPort(ctx context.Context, q Querier, candidates []string, host string) (string, error) {
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := q.Query(ctx, candidate, host); err != nil {
			return candidate, nil
		}
	}
	return "", ErrNoFreeDNSPort
}

// ClassifyResolvers drops the resolvers that must not be used as upstreams:
// the address the new DNS server is about to bind, and local addresses on
// which a lokinet DNS server from an earlier run still answers probeName.
// Remote resolvers are always kept. Order is preserved.
func ClassifyResolvers(ctx context.Context, q Querier, resolvers []string, local []net.IP, bindIP, probeName string) []string {
	keep := make([]string, 0, len(resolvers))
	for _, resolver := range resolvers {
		host := Host(resolver)
		if bindIP != "" && host == bindIP {
			continue
		}
		ip := net.ParseIP(host)
		if ip != nil && isLocal(ip, local) && isManaged(ctx, q, resolver, probeName) {
			continue
		}
		keep = append(keep, resolver)
	}
	return keep
}

// FindManagedDNS returns the first address on which a lokinet DNS server
// answers probeName.
func FindManagedDNS(ctx context.Context, q Querier, addrs []net.IP, probeName string) (net.IP, bool) {
	for _, ip := range addrs {
		if isManaged(ctx, q, ip.String(), probeName) {
			return ip, true
		}
	}
	return nil, false
}

// Lookup resolves host through server. A name that does not exist gives no
// addresses and no error; a server that does not answer is an error.
func Lookup(ctx context.Context, q Querier, server, host string) ([]net.IP, error) {
	reply, err := q.Query(ctx, server, host)
	if err != nil {
		return nil, err
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, nil
	}
	return Addresses(reply), nil
}

func isManaged(ctx context.Context, q Querier, server, probeName string) bool {
	ips, err := Lookup(ctx, q, server, probeName)
	return err == nil && len(ips) > 0
}

func isLocal(ip net.IP, local []net.IP) bool {
	for _, l := range local {
		if l.Equal(ip) {
			return true
		}
	}
	return false
}
