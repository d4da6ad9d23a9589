//go:build !linux
// +build !linux

package probe

import (
	"fmt"
	"net"
)

// BoundAddresses returns every IPv4 address assigned to the host.
func BoundAddresses() ([]net.IP, error) {
	var ips []net.IP
	err := eachAddress(func(_ net.Interface, ip net.IP) bool {
		ips = append(ips, ip)
		return true
	})
	return ips, err
}

// InterfaceName returns the name of the interface ip is assigned to.
func InterfaceName(ip net.IP) (string, error) {
	name := ""
	err := eachAddress(func(intf net.Interface, addr net.IP) bool {
		if addr.Equal(ip) {
			name = intf.Name
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

func eachAddress(fn func(net.Interface, net.IP) bool) error {
	intfs, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("listing interfaces: %w", err)
	}
	for _, intf := range intfs {
		addrs, err := intf.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			if !fn(intf, ipnet.IP) {
				return nil
			}
		}
	}
	return nil
}
