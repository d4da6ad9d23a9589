//go:build unix

package probe

import (
	"context"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// localAddress keeps a duplicate of the dialing socket so that the local
// address can still be read with getsockname once the dial has timed out
// and the original descriptor is closed.
func localAddress(ctx context.Context, target string) (net.IP, error) {
	var mutex sync.Mutex
	dup := -1
	dialer := net.Dialer{
		Timeout: Timeout,
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				nfd, err := unix.Dup(int(fd))
				if err != nil {
					return
				}
				mutex.Lock()
				if dup >= 0 {
					unix.Close(dup)
				}
				dup = nfd
				mutex.Unlock()
			})
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp4", target)
	mutex.Lock()
	fd := dup
	mutex.Unlock()
	if fd >= 0 {
		defer unix.Close(fd)
	}
	if err == nil {
		defer conn.Close()
		return conn.LocalAddr().(*net.TCPAddr).IP, nil
	}
	if !isTimeout(err) || fd < 0 {
		return nil, err
	}
	sa, serr := unix.Getsockname(fd)
	if serr != nil {
		return nil, err
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		ip := net.IPv4(in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3])
		if !ip.IsUnspecified() {
			return ip, nil
		}
	}
	return nil, err
}
