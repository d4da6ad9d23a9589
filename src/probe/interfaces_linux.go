//go:build linux
// +build linux

package probe

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// BoundAddresses returns every IPv4 address assigned to the host.
func BoundAddresses() ([]net.IP, error) {
	var ips []net.IP
	err := eachAddress(func(_ netlink.Link, addr netlink.Addr) bool {
		ips = append(ips, addr.IP)
		return true
	})
	return ips, err
}

// InterfaceName returns the name of the link ip is assigned to.
func InterfaceName(ip net.IP) (string, error) {
	name := ""
	err := eachAddress(func(link netlink.Link, addr netlink.Addr) bool {
		if addr.IP.Equal(ip) {
			name = link.Attrs().Name
			return false
		}
		return true
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("no interface has address %s", ip)
	}
	return name, nil
}

func eachAddress(fn func(netlink.Link, netlink.Addr) bool) error {
	links, err := netlink.LinkList()
	if err != nil {
		return fmt.Errorf("listing links: %w", err)
	}
	for _, link := range links {
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if addr.IPNet == nil {
				continue
			}
			if !fn(link, addr) {
				return nil
			}
		}
	}
	return nil
}
