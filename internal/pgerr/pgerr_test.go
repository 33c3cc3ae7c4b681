package pgerr

import (
	"errors"
	"testing"
)

func TestInvalidDsnErrorMessage(t *testing.T) {
	e := &InvalidDsnError{Kind: DsnMissingUser}
	if got := e.Error(); got != "invalid dsn: missing user" {
		t.Errorf("Error() = %q", got)
	}

	e2 := &InvalidDsnError{Kind: DsnParseError, Detail: "bad port"}
	if got := e2.Error(); got != "invalid dsn: parse error: bad port" {
		t.Errorf("Error() = %q", got)
	}
}

func TestMessageReadErrorWrapping(t *testing.T) {
	io := errors.New("connection reset")
	mre := NewIOReadError(io)
	if !errors.Is(mre, io) {
		t.Error("expected MessageReadError to unwrap to the underlying I/O error")
	}

	unrec := NewUnrecognizedError('Z', []byte{1, 2, 3})
	if unrec.Unrecognized == nil {
		t.Fatal("expected Unrecognized to be set")
	}
	if got := unrec.Error(); got == "" {
		t.Error("expected non-empty error message")
	}
}

func TestFetchErrorUnwrap(t *testing.T) {
	io := errors.New("short read")
	fe := NewFetchReadError(io)
	if !errors.Is(fe, io) {
		t.Error("expected FetchError to unwrap through MessageReadError to the I/O error")
	}

	fe2 := NewFetchUnexpectedError("extended query", "CommandComplete")
	if fe2.UnexpectedErr == nil {
		t.Fatal("expected UnexpectedErr to be set")
	}
}

func TestConnectionErrorDispatch(t *testing.T) {
	dsnErr := FromDsn(&InvalidDsnError{Kind: DsnMissingNetloc})
	if dsnErr.Error() != "invalid dsn: missing netloc" {
		t.Errorf("Error() = %q", dsnErr.Error())
	}

	serverErr := FromServer(&ServerError{Severity: "FATAL", Code: "28P01", Message: "password authentication failed"})
	if serverErr.Error() != "server error: FATAL 28P01: password authentication failed" {
		t.Errorf("Error() = %q", serverErr.Error())
	}

	wrapped := Wrap("dialing", errors.New("refused"))
	if wrapped.Error() != "dialing: refused" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestIsServerError(t *testing.T) {
	se := &ServerError{Severity: "ERROR", Code: "42601", Message: "syntax error"}
	ce := FromServer(se)

	got, ok := IsServerError(ce)
	if !ok {
		t.Fatal("expected IsServerError to find the wrapped ServerError")
	}
	if got.Code != "42601" {
		t.Errorf("Code = %q, want 42601", got.Code)
	}

	if _, ok := IsServerError(FromOther(errors.New("boom"))); ok {
		t.Error("expected IsServerError to return false for a non-server error")
	}
}

func TestConnectionErrorUnwrap(t *testing.T) {
	fe := NewFetchReadError(errors.New("eof"))
	ce := FromFetch(fe)
	if !errors.Is(ce, fe) {
		t.Error("expected ConnectionError to unwrap to its FetchError")
	}
}
