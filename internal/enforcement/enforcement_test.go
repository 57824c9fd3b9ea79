package enforcement

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/authzctx"
	"github.com/empowerID/RealTimeAuth/internal/ctxbind"
	"github.com/empowerID/RealTimeAuth/internal/revocation"
	"github.com/empowerID/RealTimeAuth/internal/rtatoken"
	"github.com/empowerID/RealTimeAuth/internal/transport"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"
)

type testHarness struct {
	addr     string
	contexts *authzctx.Store
	revoked  *revocation.Set
	signer   *rtatoken.Signer
	shutdown func()
}

func startHarness(t *testing.T) testHarness {
	t.Helper()

	tlsConf, err := transport.GenerateEphemeralTLSConfig()
	require.NoError(t, err)

	listener, err := transport.Listen("127.0.0.1:0", tlsConf)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	contexts := authzctx.NewStore()
	revoked := revocation.NewSet()
	verifier := rtatoken.NewVerifier(pub)

	srv := New(listener, verifier, contexts, revoked, time.Hour, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()

	return testHarness{
		addr:     listener.Addr().String(),
		contexts: contexts,
		revoked:  revoked,
		signer:   rtatoken.NewSigner(priv),
		shutdown: func() {
			cancel()
			_ = listener.Close()
		},
	}
}

func issueToken(t *testing.T, signer *rtatoken.Signer, userID string) (string, string) {
	t.Helper()
	var sid [16]byte
	copy(sid[:], []byte("session-id-12345")[:16])
	tok, err := signer.Issue(sid, ctxbind.Derive(userID))
	require.NoError(t, err)
	encoded := rtatoken.Encode(tok)
	return tok.SessionIDHex(), base64.StdEncoding.EncodeToString(encoded)
}

func sendRequest(t *testing.T, addr, rtaToken, resource string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, &tls.Config{InsecureSkipVerify: true, NextProtos: []string{transport.ALPN}}, nil)
	require.NoError(t, err)
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)

	body, err := json.Marshal(Request{RTAToken: rtaToken, Resource: resource})
	require.NoError(t, err)
	_, err = stream.Write(body)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return string(data)
}

func TestEnforcementGrantsAllowedResource(t *testing.T) {
	h := startHarness(t)
	defer h.shutdown()

	sessionIDHex, rtaToken := issueToken(t, h.signer, "user-1")
	h.contexts.Put(sessionIDHex, authzctx.NewContext("user-1", []string{"reports:read"}, 10))

	resp := sendRequest(t, h.addr, rtaToken, "reports:read")
	require.Equal(t, "Access granted to reports:read", resp)
}

func TestEnforcementDeniesUnlistedResource(t *testing.T) {
	h := startHarness(t)
	defer h.shutdown()

	sessionIDHex, rtaToken := issueToken(t, h.signer, "user-2")
	h.contexts.Put(sessionIDHex, authzctx.NewContext("user-2", []string{"reports:read"}, 10))

	resp := sendRequest(t, h.addr, rtaToken, "reports:delete")
	require.Contains(t, resp, "Access denied")
}

func TestEnforcementRejectsRevokedSession(t *testing.T) {
	h := startHarness(t)
	defer h.shutdown()

	sessionIDHex, rtaToken := issueToken(t, h.signer, "user-3")
	h.contexts.Put(sessionIDHex, authzctx.NewContext("user-3", []string{"reports:read"}, 10))
	h.revoked.MarkRevoked(sessionIDHex)

	resp := sendRequest(t, h.addr, rtaToken, "reports:read")
	require.Equal(t, "Token revoked", resp)
}

func TestEnforcementDeniesHighRiskContext(t *testing.T) {
	h := startHarness(t)
	defer h.shutdown()

	sessionIDHex, rtaToken := issueToken(t, h.signer, "user-4")
	h.contexts.Put(sessionIDHex, authzctx.NewContext("user-4", []string{"reports:read"}, 75))

	resp := sendRequest(t, h.addr, rtaToken, "reports:read")
	require.Contains(t, resp, "Access denied")
}
