package probe

import (
	"context"
	"net"

	"github.com/loykin/tether/internal/address"
)

// TCP is ready when a connection to host:port is accepted.
type TCP struct{}

func (TCP) Ready(ctx context.Context, addr address.Address) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr.HostPort())
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func (TCP) Describe() string { return "tcp" }
