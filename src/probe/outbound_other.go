//go:build !unix

package probe

import (
	"context"
	"net"
)

// There is no portable way to read the local address of a socket whose
// dial has been abandoned, so a timeout is a failure here.
func localAddress(ctx context.Context, target string) (net.IP, error) {
	dialer := net.Dialer{Timeout: Timeout}
	conn, err := dialer.DialContext(ctx, "tcp4", target)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.TCPAddr).IP, nil
}
