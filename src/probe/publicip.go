package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
)

// ConsensusRounds is how many two-service rounds PublicIP tries before it
// gives up.
const ConsensusRounds = 10

// ErrNoConsensus means no round produced two matching answers.
var ErrNoConsensus = errors.New("public IP services did not agree")

// PublicIP asks two services, picked at random with replacement, for the
// address they see us connecting from. The address is only accepted if both
// give the same non-empty answer; otherwise another round is run.
func PublicIP(ctx context.Context, getter Getter, services []string) (net.IP, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: no services configured", ErrNoConsensus)
	}
	for round := 0; round < ConsensusRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var pair [2]string
		var wg sync.WaitGroup
		for i := range pair {
			service := services[rand.Intn(len(services))]
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if body, err := getter.Get(ctx, service); err == nil {
					pair[i] = strings.TrimSpace(string(body))
				}
			}(i)
		}
		wg.Wait()
		if pair[0] == "" || pair[0] != pair[1] {
			continue
		}
		if ip := net.ParseIP(pair[0]); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("%w after %d rounds", ErrNoConsensus, ConsensusRounds)
}
