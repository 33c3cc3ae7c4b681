package pgconn

import (
	"context"
	"net"

	"github.com/jkantaria/pgcolumn/internal/pgerr"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

// cancelRequestCode is the fixed fake protocol version PostgreSQL uses to
// recognize a CancelRequest on a brand new connection instead of a startup
// message.
const cancelRequestCode = 80877102

// CancelRequest opens a fresh connection to the same backend and sends the
// out-of-band cancel message carrying the target's BackendKeyData, per the
// protocol's cancellation side channel. It does not wait for a reply — the
// backend closes the connection without responding either way.
func (c *Connection) CancelRequest(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return pgerr.Wrap("pgconn: dialing for CancelRequest", err)
	}
	defer conn.Close()

	var body []byte
	body = wire.PutUint32(body, cancelRequestCode)
	body = wire.PutUint32(body, c.backendPID)
	body = wire.PutUint32(body, c.backendSecret)

	var msg []byte
	msg = wire.PutUint32(msg, uint32(4+len(body)))
	msg = append(msg, body...)

	if _, err := conn.Write(msg); err != nil {
		return pgerr.Wrap("pgconn: sending CancelRequest", err)
	}
	return nil
}

// Healthy reports whether the connection's background read pump is still
// running with no observed socket error — the liveness distinction comes
// from the framer's own pump rather than a second, racing reader on the
// socket, since a live Connection always has that pump running.
func (c *Connection) Healthy(ctx context.Context) bool {
	return c.fr.Healthy()
}
