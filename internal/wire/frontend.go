package wire

import "fmt"

// FrontendMessage is satisfied by every message the driver can send to the
// backend. Encode appends the wire-format encoding of the message to dst and
// returns the extended slice, taking an explicit destination buffer instead
// of allocating per call.
type FrontendMessage interface {
	Encode(dst []byte) ([]byte, error)
}

// StartupMessage is the very first message sent on a new connection. It has
// no type tag; its length field still counts itself.
type StartupMessage struct {
	Major  uint16
	Minor  uint16
	Params []StartupParam // ordered; User and Database are conventionally first
}

// StartupParam is one key/value pair in a StartupMessage.
type StartupParam struct {
	Key   string
	Value string
}

// NewStartupMessage builds a StartupMessage for protocol version 3.0 with the
// required "user" key and an optional "database" key.
func NewStartupMessage(user string, database string) *StartupMessage {
	params := []StartupParam{{Key: "user", Value: user}}
	if database != "" {
		params = append(params, StartupParam{Key: "database", Value: database})
	}
	return &StartupMessage{Major: 3, Minor: 0, Params: params}
}

func (m *StartupMessage) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = PutUint16(body, m.Major)
	body = PutUint16(body, m.Minor)
	for _, p := range m.Params {
		body = PutCString(body, p.Key)
		body = PutCString(body, p.Value)
	}
	body = append(body, 0) // extra terminating \0

	dst = PutUint32(dst, uint32(4+len(body)))
	return append(dst, body...), nil
}

// Query is the simple-query protocol message ('Q').
type Query struct {
	SQL string
}

func (m *Query) Encode(dst []byte) ([]byte, error) {
	body := PutCString(nil, m.SQL)
	return finishFrontendFrame(dst, 'Q', true, body), nil
}

// Parse is the extended-query Parse message ('P'), always for the unnamed
// statement with no declared parameter OIDs.
type Parse struct {
	SQL string
}

func (m *Parse) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = PutCString(body, "") // unnamed statement
	body = PutCString(body, m.SQL)
	body = PutUint16(body, 0) // no parameter OIDs
	return finishFrontendFrame(dst, 'P', true, body), nil
}

// ResultFormat selects text or binary encoding for Bind's result columns.
type ResultFormat uint16

const (
	FormatText   ResultFormat = 0
	FormatBinary ResultFormat = 1
)

// Bind is the extended-query Bind message ('B'), always for the unnamed
// portal and unnamed statement with no parameters.
type Bind struct {
	ResultFormat ResultFormat
}

func (m *Bind) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = PutCString(body, "") // portal
	body = PutCString(body, "") // statement
	body = PutUint16(body, 1)   // one parameter format code
	body = PutUint16(body, uint16(FormatText))
	body = PutUint16(body, 0) // no parameters
	body = PutUint16(body, 1) // one result format code
	body = PutUint16(body, uint16(m.ResultFormat))
	return finishFrontendFrame(dst, 'B', true, body), nil
}

// Describe is the extended-query Describe message ('D') for the unnamed portal.
type Describe struct{}

func (m *Describe) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = append(body, 'P')
	body = PutCString(body, "") // portal
	return finishFrontendFrame(dst, 'D', true, body), nil
}

// Execute is the extended-query Execute message ('E') for the unnamed
// portal, with no row cap.
type Execute struct{}

func (m *Execute) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = PutCString(body, "")
	body = PutUint32(body, 0)
	return finishFrontendFrame(dst, 'E', true, body), nil
}

// Flush is the extended-query Flush message ('H'), an empty body.
type Flush struct{}

func (m *Flush) Encode(dst []byte) ([]byte, error) {
	return finishFrontendFrame(dst, 'H', true, nil), nil
}

// Sync is the extended-query Sync message ('S'), an empty body.
type Sync struct{}

func (m *Sync) Encode(dst []byte) ([]byte, error) {
	return finishFrontendFrame(dst, 'S', true, nil), nil
}

// SASLInitialResponse carries the client-first-message of a SASL exchange.
type SASLInitialResponse struct {
	Mechanism   string
	ClientFirst []byte
}

func (m *SASLInitialResponse) Encode(dst []byte) ([]byte, error) {
	var body []byte
	body = PutCString(body, m.Mechanism)
	body = PutUint32(body, uint32(len(m.ClientFirst)))
	body = append(body, m.ClientFirst...)
	return finishFrontendFrame(dst, 'p', true, body), nil
}

// SASLResponse carries a raw SASL response (the client-final-message).
type SASLResponse struct {
	Data []byte
}

func (m *SASLResponse) Encode(dst []byte) ([]byte, error) {
	return finishFrontendFrame(dst, 'p', true, m.Data), nil
}

// EncodeMessage is a convenience wrapper used by callers that only hold the
// FrontendMessage interface.
func EncodeMessage(m FrontendMessage) ([]byte, error) {
	buf, err := m.Encode(nil)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", m, err)
	}
	return buf, nil
}
