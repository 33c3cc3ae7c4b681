package columnar

import (
	"fmt"

	"github.com/jkantaria/pgcolumn/internal/catalog"
	"github.com/jkantaria/pgcolumn/internal/pgerr"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

// Conn is the minimal framer surface the engine needs, mirroring the scram
// package's Conn so both can be exercised against a fake in tests.
type Conn interface {
	WriteMessage(m wire.FrontendMessage) error
	ReadTyped() (wire.RawTypedBackendMessage, error)
}

// FetchSimple runs a query through the simple query protocol: one Query
// message, a RowDescription, zero or more DataRows, a CommandComplete, and
// ReadyForQuery — no Sync is ever sent on this path.
// Columns arrive and are packed as text, which this path must parse and
// re-encode into the fixed-width big-endian layout the columnar output
// requires.
func FetchSimple(conn Conn, reg catalog.Registry, sql string) (FetchResult, error) {
	if err := conn.WriteMessage(&wire.Query{SQL: sql}); err != nil {
		return FetchResult{}, fmt.Errorf("columnar: sending Query: %w", err)
	}

	desc, err := readRowDescription(conn)
	if err != nil {
		return FetchResult{}, err
	}
	specs, err := buildColumnSpecs(desc, reg)
	if err != nil {
		return FetchResult{}, err
	}

	var rawRows [][]byte
	for {
		typed, err := conn.ReadTyped()
		if err != nil {
			return FetchResult{}, pgerr.FromFetch(pgerr.NewFetchReadError(err))
		}
		switch typed.Kind {
		case wire.KindDataRow:
			rawRows = append(rawRows, typed.Body)
		case wire.KindCommandComplete:
			continue
		case wire.KindReadyForQuery:
			return transpose(rawRows, specs, encodingText)
		case wire.KindErrorResponse:
			return FetchResult{}, serverErrorFrom(typed)
		default:
			return FetchResult{}, pgerr.FromFetch(pgerr.NewFetchUnexpectedError("simple query result", typed.Kind.String()))
		}
	}
}

// FetchExtended runs a query through the extended/prepared protocol with
// binary result formatting: Parse, Bind, Describe, Execute and
// Flush are pipelined without waiting for replies, then ParseComplete,
// BindComplete, RowDescription, DataRows and CommandComplete are read back;
// a Sync is sent once results are exhausted to return the connection to
// ReadyForQuery. This is the preferred, higher-performance path since
// binary columns require no text parsing before packing.
func FetchExtended(conn Conn, reg catalog.Registry, sql string) (FetchResult, error) {
	msgs := []wire.FrontendMessage{
		&wire.Parse{SQL: sql},
		&wire.Bind{ResultFormat: wire.FormatBinary},
		&wire.Describe{},
		&wire.Execute{},
		&wire.Flush{},
	}
	for _, m := range msgs {
		if err := conn.WriteMessage(m); err != nil {
			return FetchResult{}, fmt.Errorf("columnar: sending %T: %w", m, err)
		}
	}

	if err := expectKind(conn, wire.KindParseComplete); err != nil {
		return FetchResult{}, err
	}
	if err := expectKind(conn, wire.KindBindComplete); err != nil {
		return FetchResult{}, err
	}

	desc, err := readRowDescription(conn)
	if err != nil {
		return FetchResult{}, err
	}
	specs, err := buildColumnSpecs(desc, reg)
	if err != nil {
		return FetchResult{}, err
	}

	var rawRows [][]byte
	for {
		typed, err := conn.ReadTyped()
		if err != nil {
			return FetchResult{}, pgerr.FromFetch(pgerr.NewFetchReadError(err))
		}
		switch typed.Kind {
		case wire.KindDataRow:
			rawRows = append(rawRows, typed.Body)
		case wire.KindCommandComplete:
			if err := conn.WriteMessage(&wire.Sync{}); err != nil {
				return FetchResult{}, fmt.Errorf("columnar: sending Sync: %w", err)
			}
		case wire.KindReadyForQuery:
			return transpose(rawRows, specs, encodingBinary)
		case wire.KindErrorResponse:
			return FetchResult{}, serverErrorFrom(typed)
		default:
			return FetchResult{}, pgerr.FromFetch(pgerr.NewFetchUnexpectedError("extended query result", typed.Kind.String()))
		}
	}
}

func readRowDescription(conn Conn) (wire.RowDescription, error) {
	typed, err := conn.ReadTyped()
	if err != nil {
		return wire.RowDescription{}, pgerr.FromFetch(pgerr.NewFetchReadError(err))
	}
	if typed.Kind == wire.KindErrorResponse {
		return wire.RowDescription{}, serverErrorFrom(typed)
	}
	if typed.Kind != wire.KindRowDescription {
		return wire.RowDescription{}, pgerr.FromFetch(pgerr.NewFetchUnexpectedError("row description", typed.Kind.String()))
	}
	parsed, err := wire.Parse(typed)
	if err != nil {
		return wire.RowDescription{}, fmt.Errorf("columnar: parsing RowDescription: %w", err)
	}
	return parsed.(wire.RowDescription), nil
}

func expectKind(conn Conn, want wire.Kind) error {
	typed, err := conn.ReadTyped()
	if err != nil {
		return pgerr.FromFetch(pgerr.NewFetchReadError(err))
	}
	if typed.Kind == wire.KindErrorResponse {
		return serverErrorFrom(typed)
	}
	if typed.Kind != want {
		return pgerr.FromFetch(pgerr.NewFetchUnexpectedError(want.String(), typed.Kind.String()))
	}
	return nil
}

func serverErrorFrom(typed wire.RawTypedBackendMessage) error {
	parsed, err := wire.Parse(typed)
	if err != nil {
		return fmt.Errorf("columnar: server returned an ErrorResponse that failed to parse: %w", err)
	}
	er := parsed.(wire.ErrorResponse)
	return pgerr.FromServer(&pgerr.ServerError{Severity: er.Severity, Code: er.Code, Message: er.Message})
}
