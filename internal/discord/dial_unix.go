//go:build !windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/desertthunder/subcord/internal/shared"
)

// dial connects to the first IPC socket that accepts a connection.
func dial(ctx context.Context, paths []string) (net.Conn, error) {
	var d net.Dialer
	for _, p := range paths {
		conn, err := d.DialContext(ctx, "unix", p)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: tried %d paths", shared.ErrNoSocket, len(paths))
}
