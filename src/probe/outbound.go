package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
)

// ErrNoTargets is returned by DetectOutbound without any targets to try.
var ErrNoTargets = errors.New("no outbound test targets")

// Outbound is the address traffic towards the internet leaves the host by.
type Outbound struct {
	IP        net.IP
	Interface string
}

// DetectOutbound connects to one of targets, picked at random, and reports
// the local address the OS chose for the connection. The connection is
// closed straight away. If the handshake does not finish within Timeout but
// the socket was already given a local address, that address is returned.
func DetectOutbound(ctx context.Context, targets []string, port int) (Outbound, error) {
	if len(targets) == 0 {
		return Outbound{}, ErrNoTargets
	}
	target := net.JoinHostPort(targets[rand.Intn(len(targets))], strconv.Itoa(port))
	ip, err := localAddress(ctx, target)
	if err != nil {
		return Outbound{}, fmt.Errorf("connect to %s: %w", target, err)
	}
	out := Outbound{IP: ip}
	if name, err := InterfaceName(ip); err == nil {
		out.Interface = name
	}
	return out, nil
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
