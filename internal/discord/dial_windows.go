//go:build windows

package discord

import (
	"context"
	"fmt"
	"net"

	"github.com/desertthunder/subcord/internal/shared"
)

// dial is unsupported on Windows, where Discord listens on a named pipe.
func dial(ctx context.Context, paths []string) (net.Conn, error) {
	return nil, fmt.Errorf("%w: named pipes are not supported", shared.ErrNoSocket)
}
