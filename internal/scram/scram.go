// Package scram implements the client side of the SCRAM-SHA-256 SASL
// exchange used for PostgreSQL authentication (RFC 5802/7677).
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jkantaria/pgcolumn/internal/wire"
)

// Mechanism is the only SASL mechanism this driver supports.
const Mechanism = "SCRAM-SHA-256"

// frameWriter and frameReader are the minimal framer surface the driver
// needs, so the SASL state machine can be tested against a fake without
// depending on a live socket.
type frameWriter interface {
	WriteMessage(m wire.FrontendMessage) error
}

type frameReader interface {
	ReadTyped() (wire.RawTypedBackendMessage, error)
}

// Conn is satisfied by *framer.Framer.
type Conn interface {
	frameWriter
	frameReader
}

// client holds the per-exchange SCRAM state.
type client struct {
	user     string
	password string

	clientNonce     string
	gs2Header       string
	clientFirstBare string
	authMessage     string
	saltedPassword  []byte
}

// Authenticate runs the full client state machine described below:
//
//	[idle] --client_first-->  SASLInitialResponse sent
//	       <-- AuthenticationSASLContinue{server_first}
//	       --handle_server_first--> client_final
//	       --> SASLResponse sent
//	       <-- AuthenticationSASLFinal{server_final}
//	       --handle_server_final--> verified
//	       <-- AuthenticationOk
//
// mechanisms is the list advertised by the server's AuthenticationSASL
// message; the driver searches it explicitly for SCRAM-SHA-256 rather than
// assuming it is first.
func Authenticate(conn Conn, user, password string, mechanisms []string) error {
	if !contains(mechanisms, Mechanism) {
		return fmt.Errorf("scram: server does not support %s, offered: %v", Mechanism, mechanisms)
	}

	c := &client{user: user, password: password}

	clientFirst, err := c.buildClientFirst()
	if err != nil {
		return fmt.Errorf("scram: building client-first-message: %w", err)
	}
	if err := conn.WriteMessage(&wire.SASLInitialResponse{Mechanism: Mechanism, ClientFirst: clientFirst}); err != nil {
		return fmt.Errorf("scram: sending SASLInitialResponse: %w", err)
	}

	continueMsg, err := readExpected(conn, wire.KindAuthenticationSASLContinue)
	if err != nil {
		return err
	}
	serverFirst := continueMsg.(wire.AuthenticationSASLContinue).ServerFirst

	clientFinal, err := c.handleServerFirst(serverFirst)
	if err != nil {
		return fmt.Errorf("scram: handling server-first-message: %w", err)
	}
	if err := conn.WriteMessage(&wire.SASLResponse{Data: []byte(clientFinal)}); err != nil {
		return fmt.Errorf("scram: sending SASLResponse: %w", err)
	}

	finalMsg, err := readExpected(conn, wire.KindAuthenticationSASLFinal)
	if err != nil {
		return err
	}
	serverFinal := finalMsg.(wire.AuthenticationSASLFinal).ServerFinal
	if err := c.handleServerFinal(serverFinal); err != nil {
		return fmt.Errorf("scram: handling server-final-message: %w", err)
	}

	if _, err := readExpected(conn, wire.KindAuthenticationOk); err != nil {
		return err
	}
	return nil
}

func readExpected(conn frameReader, want wire.Kind) (wire.BackendMessage, error) {
	raw, err := conn.ReadTyped()
	if err != nil {
		return nil, fmt.Errorf("scram: reading %s: %w", want, err)
	}
	if raw.Kind == wire.KindErrorResponse {
		parsed, perr := wire.Parse(raw)
		if perr == nil {
			er := parsed.(wire.ErrorResponse)
			return nil, fmt.Errorf("scram: server error while awaiting %s: %s %s: %s", want, er.Severity, er.Code, er.Message)
		}
		return nil, fmt.Errorf("scram: server error while awaiting %s", want)
	}
	if raw.Kind != want {
		return nil, fmt.Errorf("scram: expected %s, got %s", want, raw.Kind)
	}
	return wire.Parse(raw)
}

// buildClientFirst generates the client nonce and returns the
// client-first-message: gs2-header "n,," + "n=<user>,r=<nonce>".
func (c *client) buildClientFirst() ([]byte, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	c.clientNonce = base64.StdEncoding.EncodeToString(nonceBytes)

	c.gs2Header = "n,,"
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeUsername(c.user), c.clientNonce)
	return []byte(c.gs2Header + c.clientFirstBare), nil
}

// handleServerFirst parses "r=<nonce>,s=<salt>,i=<iterations>", derives the
// salted password, and returns the client-final-message.
func (c *client) handleServerFirst(serverFirst string) (string, error) {
	serverNonce, salt, iterations, err := parseServerFirst(serverFirst)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return "", fmt.Errorf("server nonce does not start with client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(c.gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)

	c.authMessage = c.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// handleServerFinal verifies "v=<server-signature>" against the expected value.
func (c *client) handleServerFinal(serverFinal string) error {
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(c.authMessage))
	expected := "v=" + base64.StdEncoding.EncodeToString(expectedSig)

	if serverFinal != expected {
		return fmt.Errorf("server signature mismatch")
	}
	return nil
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

// escapeUsername replaces "=" with "=3D" and "," with "=2C" per RFC 5802.
func escapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func contains(list []string, target string) bool {
	for _, m := range list {
		if m == target {
			return true
		}
	}
	return false
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	result := make([]byte, len(a))
	for i := range a {
		result[i] = a[i] ^ b[i]
	}
	return result
}
