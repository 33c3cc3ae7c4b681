// Package pgconn drives the connection state machine: dial, startup, SASL
// authentication, draining backend chatter until ReadyForQuery, and the
// pg_type bootstrap query, yielding a Connection ready for columnar fetches.
package pgconn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkantaria/pgcolumn/internal/catalog"
	"github.com/jkantaria/pgcolumn/internal/columnar"
	"github.com/jkantaria/pgcolumn/internal/framer"
	"github.com/jkantaria/pgcolumn/internal/pgerr"
	"github.com/jkantaria/pgcolumn/internal/scram"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

// Options tunes dial behavior and the underlying framer. A zero
// ReadBufferSize or FrameChannelCapacity falls back to the framer package's
// own defaults; a zero DialTimeout sets no dial timeout beyond ctx; a nil
// Logger uses slog.Default().
type Options struct {
	DialTimeout         time.Duration
	ReadBufferSize      int
	FrameChannelCapacity int
	Logger              *slog.Logger
}

// Connection is one authenticated, catalog-bootstrapped link to a
// PostgreSQL backend. All Fetch calls on a single Connection are
// serialized by mu — the wire protocol has no concept of concurrent
// requests on one socket.
type Connection struct {
	id   string
	addr string
	fr   *framer.Framer
	log  *slog.Logger

	params   map[string]string
	backendPID    uint32
	backendSecret uint32
	types    catalog.Registry

	mu sync.Mutex
}

// Connect dials dsn, authenticates, and bootstraps the type catalog.
func Connect(ctx context.Context, dsn string, opts Options) (*Connection, error) {
	d, derr := ParseDSN(dsn)
	if derr != nil {
		return nil, pgerr.FromDsn(derr)
	}
	return connect(ctx, d, opts)
}

// dialFunc abstracts net.Dialer.DialContext so tests can substitute a
// net.Pipe half for a real TCP dial.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

func connect(ctx context.Context, d *Dsn, opts Options) (*Connection, error) {
	return connectWithDialFunc(ctx, d, opts, func(ctx context.Context, addr string) (net.Conn, error) {
		dialer := net.Dialer{Timeout: opts.DialTimeout}
		return dialer.DialContext(ctx, "tcp", addr)
	})
}

func connectWithDialFunc(ctx context.Context, d *Dsn, opts Options, dial dialFunc) (*Connection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dial(ctx, d.Address())
	if err != nil {
		return nil, pgerr.Wrap("pgconn: dial", err)
	}

	c := &Connection{
		id:     uuid.New().String(),
		addr:   d.Address(),
		fr:     framer.New(conn, opts.ReadBufferSize, opts.FrameChannelCapacity),
		log:    logger,
		params: map[string]string{},
	}

	if err := c.startupAndAuthenticate(d); err != nil {
		c.fr.Close()
		return nil, err
	}

	if err := c.bootstrapTypes(); err != nil {
		c.fr.Close()
		return nil, err
	}

	c.log.Info("pgconn: connection ready", "conn_id", c.id, "addr", c.addr, "pid", c.backendPID)
	return c, nil
}

// startupAndAuthenticate sends StartupMessage, runs the SASL driver if
// offered (fails otherwise), then drains ParameterStatus/BackendKeyData/
// NoticeResponse until ReadyForQuery.
func (c *Connection) startupAndAuthenticate(d *Dsn) error {
	start := wire.NewStartupMessage(d.User, d.Database)
	if err := c.fr.WriteMessage(start); err != nil {
		return pgerr.Wrap("pgconn: sending StartupMessage", err)
	}

	typed, err := c.fr.ReadTyped()
	if err != nil {
		return pgerr.FromFetch(pgerr.NewFetchReadError(err))
	}
	switch typed.Kind {
	case wire.KindAuthenticationSASL:
		parsed, err := wire.Parse(typed)
		if err != nil {
			return pgerr.Wrap("pgconn: parsing AuthenticationSASL", err)
		}
		mechs := parsed.(wire.AuthenticationSASL).Mechanisms
		if err := scram.Authenticate(c.fr, d.User, d.Password, mechs); err != nil {
			return pgerr.Wrap("pgconn: SCRAM authentication", err)
		}
	case wire.KindErrorResponse:
		return serverErrorFrom(typed)
	default:
		return pgerr.FromOther(fmt.Errorf("pgconn: server requested unsupported authentication (%s); only SCRAM-SHA-256 is supported", typed.Kind))
	}

	for {
		typed, err := c.fr.ReadTyped()
		if err != nil {
			return pgerr.FromFetch(pgerr.NewFetchReadError(err))
		}
		switch typed.Kind {
		case wire.KindParameterStatus:
			parsed, err := wire.Parse(typed)
			if err != nil {
				return pgerr.Wrap("pgconn: parsing ParameterStatus", err)
			}
			ps := parsed.(wire.ParameterStatus)
			c.params[ps.Name] = ps.Value
		case wire.KindBackendKeyData:
			parsed, err := wire.Parse(typed)
			if err != nil {
				return pgerr.Wrap("pgconn: parsing BackendKeyData", err)
			}
			bkd := parsed.(wire.BackendKeyData)
			c.backendPID, c.backendSecret = bkd.PID, bkd.Secret
		case wire.KindNoticeResponse:
			continue
		case wire.KindReadyForQuery:
			return nil
		case wire.KindErrorResponse:
			return serverErrorFrom(typed)
		default:
			return pgerr.FromFetch(pgerr.NewFetchUnexpectedError("startup", typed.Kind.String()))
		}
	}
}

// bootstrapQuery asks for the OID, name, and width of every type the
// catalog tracks; it deliberately stays inside this closed set instead of
// pulling the whole pg_type table. numeric is included so it resolves to a
// named catalog entry (typlen -1) even though catalog.DtypeFor still
// rejects it — the catalog and the dtype engine recognize different sets.
const bootstrapQuery = `SELECT oid, typname, typlen FROM pg_type WHERE typname IN ('int2','int4','int8','numeric','float4','float8')`

// bootstrapTypes runs the bootstrap query over the simple query protocol
// and decodes its three text columns directly, without going through the
// columnar dtype engine (which doesn't know about typname/typlen, only the
// five numeric OIDs it produces).
func (c *Connection) bootstrapTypes() error {
	if err := c.fr.WriteMessage(&wire.Query{SQL: bootstrapQuery}); err != nil {
		return pgerr.Wrap("pgconn: sending bootstrap query", err)
	}

	typed, err := c.fr.ReadTyped()
	if err != nil {
		return pgerr.FromFetch(pgerr.NewFetchReadError(err))
	}
	if typed.Kind == wire.KindErrorResponse {
		return serverErrorFrom(typed)
	}
	if typed.Kind != wire.KindRowDescription {
		return pgerr.FromFetch(pgerr.NewFetchUnexpectedError("bootstrap row description", typed.Kind.String()))
	}

	reg := catalog.Registry{}
	for {
		typed, err := c.fr.ReadTyped()
		if err != nil {
			return pgerr.FromFetch(pgerr.NewFetchReadError(err))
		}
		switch typed.Kind {
		case wire.KindDataRow:
			row, err := wire.ParseDataRow(typed.Body)
			if err != nil {
				return pgerr.Wrap("pgconn: parsing bootstrap row", err)
			}
			pt, err := parseBootstrapRow(row)
			if err != nil {
				return pgerr.Wrap("pgconn: decoding bootstrap row", err)
			}
			reg[pt.OID] = pt
		case wire.KindCommandComplete:
			continue
		case wire.KindReadyForQuery:
			c.types = reg
			return nil
		case wire.KindErrorResponse:
			return serverErrorFrom(typed)
		default:
			return pgerr.FromFetch(pgerr.NewFetchUnexpectedError("bootstrap result", typed.Kind.String()))
		}
	}
}

func parseBootstrapRow(row wire.DataRow) (catalog.PgType, error) {
	if len(row.Columns) != 3 {
		return catalog.PgType{}, fmt.Errorf("expected 3 columns, got %d", len(row.Columns))
	}
	for i, col := range row.Columns {
		if col == nil {
			return catalog.PgType{}, fmt.Errorf("column %d: unexpected NULL", i)
		}
	}
	oid, err := parseUint32Text(*row.Columns[0])
	if err != nil {
		return catalog.PgType{}, fmt.Errorf("oid: %w", err)
	}
	name := string(*row.Columns[1])
	size, err := parseInt16Text(*row.Columns[2])
	if err != nil {
		return catalog.PgType{}, fmt.Errorf("typlen: %w", err)
	}
	return catalog.PgType{OID: oid, Name: name, Size: size}, nil
}

// Params returns the ParameterStatus values the backend reported at startup.
func (c *Connection) Params() map[string]string {
	out := make(map[string]string, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// BackendPID returns the backend process ID from BackendKeyData, used for
// CancelRequest.
func (c *Connection) BackendPID() uint32 { return c.backendPID }

// Addr returns the host:port this connection is dialed to, safe to use as a
// metric label or log field since it never carries credentials (unlike the
// DSN it was parsed from).
func (c *Connection) Addr() string { return c.addr }

// Fetch runs sql through the extended/prepared binary protocol (spec
// §4.6b), the preferred high-performance path. Only one Fetch may be in
// flight per Connection at a time. If ctx is cancelled before the fetch
// completes, the connection is closed rather than left holding a partially
// consumed reply stream: there is no way to skip the remainder
// of an in-flight result without knowing its length in advance.
func (c *Connection) Fetch(ctx context.Context, sql string) (columnar.FetchResult, error) {
	return c.runFetch(ctx, func() (columnar.FetchResult, error) {
		return columnar.FetchExtended(c.fr, c.types, sql)
	})
}

// FetchSimple runs sql through the simple query protocol,
// exercised for statements that can't be parameterized through Parse/Bind
// or where text-format results are acceptable. Cancellation is handled the
// same way as Fetch.
func (c *Connection) FetchSimple(ctx context.Context, sql string) (columnar.FetchResult, error) {
	return c.runFetch(ctx, func() (columnar.FetchResult, error) {
		return columnar.FetchSimple(c.fr, c.types, sql)
	})
}

func (c *Connection) runFetch(ctx context.Context, do func() (columnar.FetchResult, error)) (columnar.FetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type outcome struct {
		res columnar.FetchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := do()
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		c.log.Warn("pgconn: fetch cancelled, closing connection", "conn_id", c.id)
		c.fr.Close()
		return columnar.FetchResult{}, ctx.Err()
	}
}

// Close tears down the framer and underlying socket.
func (c *Connection) Close() error {
	return c.fr.Close()
}

func serverErrorFrom(typed wire.RawTypedBackendMessage) error {
	parsed, err := wire.Parse(typed)
	if err != nil {
		return fmt.Errorf("pgconn: server returned an ErrorResponse that failed to parse: %w", err)
	}
	er := parsed.(wire.ErrorResponse)
	return pgerr.FromServer(&pgerr.ServerError{Severity: er.Severity, Code: er.Code, Message: er.Message})
}
