package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oxen-io/lokinet/src/util"
	"github.com/oxen-io/lokinet/src/version"
)

// Timeout bounds every single network probe operation.
const Timeout = 5 * time.Second

// ErrNoAnswer is returned when an HTTP probe produced nothing usable: the
// request failed, the resource was not found, or shutdown was requested
// while it was in flight.
var ErrNoAnswer = errors.New("no answer")

// Getter fetches the body of a URL.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPGetter is the Getter used outside of tests.
type HTTPGetter struct {
	Client   *http.Client
	Shutdown *util.Shutdown
}

// Get implements Getter with HTTPGet.
func (g *HTTPGetter) Get(ctx context.Context, url string) ([]byte, error) {
	return HTTPGet(ctx, g.Client, url, g.Shutdown)
}

// HTTPGet fetches url with a 5 second timeout. A watchdog completes the call
// with ErrNoAnswer as soon as shutdown is requested. A 404 is also "no
// answer", since it means the service moved away rather than that the
// network is down. The body is returned as is.
func HTTPGet(ctx context.Context, client *http.Client, url string, shutdown *util.Shutdown) ([]byte, error) {
	return get(ctx, client, url, shutdown, nil)
}

// get is HTTPGet with an optional wrapper around the response body, used to
// report download progress.
func get(ctx context.Context, client *http.Client, url string, shutdown *util.Shutdown, wrap func(io.Reader, int64) (io.Reader, func())) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	if shutdown != nil {
		go func() {
			select {
			case <-shutdown.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s returned %s", ErrNoAnswer, url, resp.Status)
	}
	var body io.Reader = resp.Body
	if wrap != nil {
		var done func()
		body, done = wrap(body, resp.ContentLength)
		defer done()
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	if shutdown != nil && shutdown.Requested() {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, shutdown.Reason())
	}
	return data, nil
}
