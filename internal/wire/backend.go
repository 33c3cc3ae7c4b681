package wire

import (
	"fmt"

	"github.com/jkantaria/pgcolumn/internal/pgerr"
)

// RawFrame is one complete backend message as delivered by the framer: a
// 1-byte type and the body, with the 4-byte length prefix already stripped.
type RawFrame struct {
	Type byte
	Body []byte
}

// Kind tags a RawTypedBackendMessage (and its fully-parsed BackendMessage
// counterpart) without requiring a full parse.
type Kind int

const (
	KindAuthenticationOk Kind = iota
	KindAuthenticationSASL
	KindAuthenticationSASLContinue
	KindAuthenticationSASLFinal
	KindParameterStatus
	KindBackendKeyData
	KindNoticeResponse
	KindReadyForQuery
	KindErrorResponse
	KindRowDescription
	KindDataRow
	KindCommandComplete
	KindParseComplete
	KindBindComplete
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticationOk:
		return "AuthenticationOk"
	case KindAuthenticationSASL:
		return "AuthenticationSASL"
	case KindAuthenticationSASLContinue:
		return "AuthenticationSASLContinue"
	case KindAuthenticationSASLFinal:
		return "AuthenticationSASLFinal"
	case KindParameterStatus:
		return "ParameterStatus"
	case KindBackendKeyData:
		return "BackendKeyData"
	case KindNoticeResponse:
		return "NoticeResponse"
	case KindReadyForQuery:
		return "ReadyForQuery"
	case KindErrorResponse:
		return "ErrorResponse"
	case KindRowDescription:
		return "RowDescription"
	case KindDataRow:
		return "DataRow"
	case KindCommandComplete:
		return "CommandComplete"
	case KindParseComplete:
		return "ParseComplete"
	case KindBindComplete:
		return "BindComplete"
	default:
		return "Unknown"
	}
}

// RawTypedBackendMessage is a RawFrame that has been identified but not
// fully parsed — the hot path for DataRow frames bypasses full parsing
// entirely and hands Body straight to the columnar transpose.
type RawTypedBackendMessage struct {
	Kind Kind
	Body []byte
}

const (
	authTypeOk            = 0
	authTypeSASL          = 10
	authTypeSASLContinue  = 11
	authTypeSASLFinal     = 12
)

// Identify dispatches on RawFrame.Type (and, for Authentication messages,
// the first 4 bytes of the body) to produce a RawTypedBackendMessage.
// Unrecognized types or auth sub-codes return a MessageReadError.
func Identify(f RawFrame) (RawTypedBackendMessage, error) {
	switch f.Type {
	case 'R':
		sub, _, ok := GetUint32(f.Body)
		if !ok {
			return RawTypedBackendMessage{}, pgerr.NewUnrecognizedError(f.Type, f.Body)
		}
		switch sub {
		case authTypeOk:
			return RawTypedBackendMessage{Kind: KindAuthenticationOk, Body: f.Body}, nil
		case authTypeSASL:
			return RawTypedBackendMessage{Kind: KindAuthenticationSASL, Body: f.Body}, nil
		case authTypeSASLContinue:
			return RawTypedBackendMessage{Kind: KindAuthenticationSASLContinue, Body: f.Body}, nil
		case authTypeSASLFinal:
			return RawTypedBackendMessage{Kind: KindAuthenticationSASLFinal, Body: f.Body}, nil
		default:
			return RawTypedBackendMessage{}, pgerr.NewUnrecognizedError(f.Type, f.Body)
		}
	case 'S':
		return RawTypedBackendMessage{Kind: KindParameterStatus, Body: f.Body}, nil
	case 'K':
		return RawTypedBackendMessage{Kind: KindBackendKeyData, Body: f.Body}, nil
	case 'N':
		return RawTypedBackendMessage{Kind: KindNoticeResponse, Body: f.Body}, nil
	case 'Z':
		return RawTypedBackendMessage{Kind: KindReadyForQuery, Body: f.Body}, nil
	case 'E':
		return RawTypedBackendMessage{Kind: KindErrorResponse, Body: f.Body}, nil
	case 'T':
		return RawTypedBackendMessage{Kind: KindRowDescription, Body: f.Body}, nil
	case 'D':
		return RawTypedBackendMessage{Kind: KindDataRow, Body: f.Body}, nil
	case 'C':
		return RawTypedBackendMessage{Kind: KindCommandComplete, Body: f.Body}, nil
	case '1':
		return RawTypedBackendMessage{Kind: KindParseComplete, Body: f.Body}, nil
	case '2':
		return RawTypedBackendMessage{Kind: KindBindComplete, Body: f.Body}, nil
	default:
		return RawTypedBackendMessage{}, pgerr.NewUnrecognizedError(f.Type, f.Body)
	}
}

// BackendMessage is the fully-parsed counterpart of RawTypedBackendMessage.
type BackendMessage interface {
	Kind() Kind
}

type AuthenticationSASL struct{ Mechanisms []string }
type AuthenticationSASLContinue struct{ ServerFirst string }
type AuthenticationSASLFinal struct{ ServerFinal string }
type AuthenticationOk struct{}
type ErrorResponse struct {
	Severity string
	Code     string
	Message  string
}
type ParameterStatus struct {
	Name  string
	Value string
}
type BackendKeyData struct {
	PID    uint32
	Secret uint32
}
type NoticeResponse struct{}
type ReadyForQuery struct{ TxStatus byte }
type FieldDescription struct {
	Name      string
	TypeOID   uint32
}
type RowDescription struct{ Fields []FieldDescription }
type DataRow struct{ Columns []*[]byte } // nil element = SQL NULL
type CommandComplete struct{ Tag string }
type ParseComplete struct{}
type BindComplete struct{}

func (AuthenticationSASL) Kind() Kind         { return KindAuthenticationSASL }
func (AuthenticationSASLContinue) Kind() Kind { return KindAuthenticationSASLContinue }
func (AuthenticationSASLFinal) Kind() Kind    { return KindAuthenticationSASLFinal }
func (AuthenticationOk) Kind() Kind           { return KindAuthenticationOk }
func (ErrorResponse) Kind() Kind              { return KindErrorResponse }
func (ParameterStatus) Kind() Kind            { return KindParameterStatus }
func (BackendKeyData) Kind() Kind             { return KindBackendKeyData }
func (NoticeResponse) Kind() Kind             { return KindNoticeResponse }
func (ReadyForQuery) Kind() Kind              { return KindReadyForQuery }
func (RowDescription) Kind() Kind             { return KindRowDescription }
func (DataRow) Kind() Kind                    { return KindDataRow }
func (CommandComplete) Kind() Kind            { return KindCommandComplete }
func (ParseComplete) Kind() Kind              { return KindParseComplete }
func (BindComplete) Kind() Kind               { return KindBindComplete }

// Parse fully parses a RawTypedBackendMessage into a BackendMessage.
func Parse(m RawTypedBackendMessage) (BackendMessage, error) {
	switch m.Kind {
	case KindAuthenticationOk:
		return AuthenticationOk{}, nil
	case KindAuthenticationSASL:
		return parseAuthSASL(m.Body)
	case KindAuthenticationSASLContinue:
		return AuthenticationSASLContinue{ServerFirst: string(m.Body[4:])}, nil
	case KindAuthenticationSASLFinal:
		return AuthenticationSASLFinal{ServerFinal: string(m.Body[4:])}, nil
	case KindParameterStatus:
		return parseParameterStatus(m.Body)
	case KindBackendKeyData:
		return parseBackendKeyData(m.Body)
	case KindNoticeResponse:
		return NoticeResponse{}, nil
	case KindReadyForQuery:
		return parseReadyForQuery(m.Body)
	case KindErrorResponse:
		return parseErrorResponse(m.Body)
	case KindRowDescription:
		return ParseRowDescription(m.Body)
	case KindDataRow:
		return ParseDataRow(m.Body)
	case KindCommandComplete:
		return parseCommandComplete(m.Body)
	case KindParseComplete:
		return ParseComplete{}, nil
	case KindBindComplete:
		return BindComplete{}, nil
	default:
		return nil, pgerr.NewUnrecognizedError(0, m.Body)
	}
}

func parseAuthSASL(body []byte) (AuthenticationSASL, error) {
	if len(body) < 4 {
		return AuthenticationSASL{}, fmt.Errorf("wire: AuthenticationSASL body too short")
	}
	rest := body[4:]
	var mechs []string
	for len(rest) > 0 {
		s, next, ok := GetCString(rest)
		if !ok {
			break
		}
		if s != "" {
			mechs = append(mechs, s)
		}
		rest = next
	}
	return AuthenticationSASL{Mechanisms: mechs}, nil
}

func parseParameterStatus(body []byte) (ParameterStatus, error) {
	name, rest, ok := GetCString(body)
	if !ok {
		return ParameterStatus{}, fmt.Errorf("wire: ParameterStatus: missing name")
	}
	val, _, ok := GetCString(rest)
	if !ok {
		return ParameterStatus{}, fmt.Errorf("wire: ParameterStatus: missing value")
	}
	return ParameterStatus{Name: name, Value: val}, nil
}

func parseBackendKeyData(body []byte) (BackendKeyData, error) {
	if len(body) < 8 {
		return BackendKeyData{}, fmt.Errorf("wire: BackendKeyData too short")
	}
	pid, rest, _ := GetUint32(body)
	secret, _, _ := GetUint32(rest)
	return BackendKeyData{PID: pid, Secret: secret}, nil
}

func parseReadyForQuery(body []byte) (ReadyForQuery, error) {
	if len(body) < 1 {
		return ReadyForQuery{}, fmt.Errorf("wire: ReadyForQuery: empty body")
	}
	return ReadyForQuery{TxStatus: body[0]}, nil
}

func parseErrorResponse(body []byte) (ErrorResponse, error) {
	var e ErrorResponse
	for len(body) > 0 && body[0] != 0 {
		field := body[0]
		val, rest, ok := GetCString(body[1:])
		if !ok {
			break
		}
		switch field {
		case 'S':
			e.Severity = val
		case 'C':
			e.Code = val
		case 'M':
			e.Message = val
		}
		body = rest
	}
	return e, nil
}

// ParseRowDescription parses a RowDescription body: u16 field count, then
// per field: name\0 + 18 opaque bytes of which bytes +6..+10 (+7..+11
// counted from the name's \0) are the type OID.
func ParseRowDescription(body []byte) (RowDescription, error) {
	n, rest, ok := GetUint16(body)
	if !ok {
		return RowDescription{}, fmt.Errorf("wire: RowDescription: missing field count")
	}
	fields := make([]FieldDescription, 0, n)
	for i := 0; i < int(n); i++ {
		name, next, ok := GetCString(rest)
		if !ok {
			return RowDescription{}, fmt.Errorf("wire: RowDescription: field %d: missing name", i)
		}
		if len(next) < 18 {
			return RowDescription{}, fmt.Errorf("wire: RowDescription: field %d: short descriptor", i)
		}
		oid, _, _ := GetUint32(next[6:10])
		fields = append(fields, FieldDescription{Name: name, TypeOID: oid})
		rest = next[18:]
	}
	return RowDescription{Fields: fields}, nil
}

// ParseDataRow parses a DataRow body: u16 column count, then per column an
// i32 length (-1 = NULL) followed by that many bytes.
func ParseDataRow(body []byte) (DataRow, error) {
	n, rest, ok := GetUint16(body)
	if !ok {
		return DataRow{}, fmt.Errorf("wire: DataRow: missing column count")
	}
	cols := make([]*[]byte, 0, n)
	for i := 0; i < int(n); i++ {
		length, next, ok := GetInt32(rest)
		if !ok {
			return DataRow{}, fmt.Errorf("wire: DataRow: column %d: missing length", i)
		}
		if length == -1 {
			cols = append(cols, nil)
			rest = next
			continue
		}
		if int(length) > len(next) {
			return DataRow{}, fmt.Errorf("wire: DataRow: column %d: truncated value", i)
		}
		val := next[:length]
		cols = append(cols, &val)
		rest = next[length:]
	}
	return DataRow{Columns: cols}, nil
}

func parseCommandComplete(body []byte) (CommandComplete, error) {
	tag, _, ok := GetCString(body)
	if !ok {
		// Some CommandComplete bodies arrive without a trailing NUL if
		// mis-framed; fall back to the raw text minus any trailing NUL.
		if len(body) > 0 && body[len(body)-1] == 0 {
			body = body[:len(body)-1]
		}
		tag = string(body)
	}
	return CommandComplete{Tag: tag}, nil
}
