package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/cheggaaa/pb/v3"

	"github.com/oxen-io/lokinet/src/util"
)

// ErrEmptyBootstrap is returned when the bootstrap URL answered with nothing.
var ErrEmptyBootstrap = errors.New("bootstrap download was empty")

// FetchBootstrap downloads the signed router contacts at url into a fresh
// temporary file and returns its path. The caller owns the file. If
// progress is set a progress bar is drawn on stderr while downloading.
func FetchBootstrap(ctx context.Context, client *http.Client, url string, shutdown *util.Shutdown, progress bool) (string, error) {
	var wrap func(io.Reader, int64) (io.Reader, func())
	if progress {
		wrap = func(r io.Reader, size int64) (io.Reader, func()) {
			bar := pb.Full.Start64(size)
			return bar.NewProxyReader(r), func() { bar.Finish() }
		}
	}
	data, err := get(ctx, client, url, shutdown, wrap)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyBootstrap
	}
	f, err := os.CreateTemp("", "*.lokinet_signed")
	if err != nil {
		return "", fmt.Errorf("creating bootstrap file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing bootstrap file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing bootstrap file: %w", err)
	}
	return f.Name(), nil
}
