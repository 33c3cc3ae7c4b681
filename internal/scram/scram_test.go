package scram

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jkantaria/pgcolumn/internal/wire"
)

// fakeConn drives the SCRAM state machine against an in-process mock
// backend instead of a real socket, exercising WriteMessage/ReadTyped
// directly rather than a raw net.Conn.
type fakeConn struct {
	toServer chan wire.FrontendMessage
	toClient chan wire.RawTypedBackendMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toServer: make(chan wire.FrontendMessage, 4),
		toClient: make(chan wire.RawTypedBackendMessage, 4),
	}
}

func (f *fakeConn) WriteMessage(m wire.FrontendMessage) error {
	f.toServer <- m
	return nil
}

func (f *fakeConn) ReadTyped() (wire.RawTypedBackendMessage, error) {
	return <-f.toClient, nil
}

func authSubtypePrefix(sub uint32) []byte {
	var b []byte
	return wire.PutUint32(b, sub)
}

func mockScramServer(t *testing.T, conn *fakeConn, user, password string) {
	t.Helper()

	initial := (<-conn.toServer).(*wire.SASLInitialResponse)
	clientFirstBare := string(initial.ClientFirst)[3:] // strip "n,,"

	var clientNonce string
	for _, part := range strings.Split(clientFirstBare, ",") {
		if strings.HasPrefix(part, "r=") {
			clientNonce = part[2:]
		}
	}

	serverNonce := clientNonce + "servernonce"
	salt := []byte("0123456789abcdef")
	iterations := 4096
	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d", serverNonce, base64.StdEncoding.EncodeToString(salt), iterations)

	conn.toClient <- wire.RawTypedBackendMessage{
		Kind: wire.KindAuthenticationSASLContinue,
		Body: append(authSubtypePrefix(11), []byte(serverFirst)...),
	}

	final := (<-conn.toServer).(*wire.SASLResponse)
	clientFinal := string(final.Data)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	expectedProof := base64.StdEncoding.EncodeToString(xorBytes(clientKey, clientSignature))

	if !strings.Contains(clientFinal, "p="+expectedProof) {
		conn.toClient <- errorResponseMessage("FATAL", "28P01", "password authentication failed")
		return
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSig := hmacSHA256(serverKey, []byte(authMessage))
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(serverSig)

	conn.toClient <- wire.RawTypedBackendMessage{
		Kind: wire.KindAuthenticationSASLFinal,
		Body: append(authSubtypePrefix(12), []byte(serverFinal)...),
	}
	conn.toClient <- wire.RawTypedBackendMessage{Kind: wire.KindAuthenticationOk}
}

func errorResponseMessage(severity, code, message string) wire.RawTypedBackendMessage {
	var body []byte
	body = append(body, 'S')
	body = append(body, severity...)
	body = append(body, 0)
	body = append(body, 'C')
	body = append(body, code...)
	body = append(body, 0)
	body = append(body, 'M')
	body = append(body, message...)
	body = append(body, 0)
	body = append(body, 0)
	return wire.RawTypedBackendMessage{Kind: wire.KindErrorResponse, Body: body}
}

func TestAuthenticateSuccess(t *testing.T) {
	conn := newFakeConn()
	go mockScramServer(t, conn, "scramuser", "scrampass")

	if err := Authenticate(conn, "scramuser", "scrampass", []string{Mechanism}); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	conn := newFakeConn()
	go mockScramServer(t, conn, "scramuser", "scrampass")

	err := Authenticate(conn, "scramuser", "wrongpass", []string{Mechanism})
	if err == nil {
		t.Fatal("expected Authenticate to fail with wrong password")
	}
}

func TestAuthenticateUnsupportedMechanism(t *testing.T) {
	conn := newFakeConn()
	err := Authenticate(conn, "user", "pass", []string{"SCRAM-SHA-256-PLUS"})
	if err == nil {
		t.Fatal("expected error when server doesn't offer SCRAM-SHA-256")
	}
}

func TestParseServerFirst(t *testing.T) {
	salt := base64.StdEncoding.EncodeToString([]byte("somesalt"))
	msg := fmt.Sprintf("r=clientnonceservernonce,s=%s,i=4096", salt)

	nonce, saltBytes, iterations, err := parseServerFirst(msg)
	if err != nil {
		t.Fatalf("parseServerFirst failed: %v", err)
	}
	if nonce != "clientnonceservernonce" {
		t.Errorf("nonce = %q, want clientnonceservernonce", nonce)
	}
	if string(saltBytes) != "somesalt" {
		t.Errorf("salt = %q, want somesalt", saltBytes)
	}
	if iterations != 4096 {
		t.Errorf("iterations = %d, want 4096", iterations)
	}
}

func TestParseServerFirstIncomplete(t *testing.T) {
	if _, _, _, err := parseServerFirst("r=onlynonce"); err == nil {
		t.Fatal("expected error for incomplete server-first-message")
	}
}

func TestEscapeUsername(t *testing.T) {
	cases := map[string]string{
		"user":   "user",
		"us=er":  "us=3Der",
		"us,er":  "us=2Cer",
	}
	for in, want := range cases {
		if got := escapeUsername(in); got != want {
			t.Errorf("escapeUsername(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestXorBytes(t *testing.T) {
	a := []byte{0xff, 0x00, 0xaa}
	b := []byte{0x0f, 0xf0, 0x55}
	got := xorBytes(a, b)
	want := []byte{0xf0, 0xf0, 0xff}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("xorBytes[%d] = 0x%02x, want 0x%02x", i, got[i], want[i])
		}
	}
}

func TestContains(t *testing.T) {
	if !contains([]string{"a", "SCRAM-SHA-256"}, "SCRAM-SHA-256") {
		t.Error("expected contains to find SCRAM-SHA-256")
	}
	if contains([]string{"a", "b"}, "SCRAM-SHA-256") {
		t.Error("expected contains to return false")
	}
}
