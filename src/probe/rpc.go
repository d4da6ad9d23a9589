package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// CheckRPCPort returns the port lokinet should expose its RPC endpoint on.
// If something already answers HTTP at ip:port, most likely a daemon left
// over from an earlier run, the next port is used. The next port is not
// tested again.
func CheckRPCPort(ctx context.Context, getter Getter, ip string, port int) int {
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(ip, strconv.Itoa(port)))
	if _, err := getter.Get(ctx, url); err == nil {
		return port + 1
	}
	return port
}

// WaitForURL polls url every interval until it answers or ctx is done.
func WaitForURL(ctx context.Context, getter Getter, url string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := getter.Get(ctx, url); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
