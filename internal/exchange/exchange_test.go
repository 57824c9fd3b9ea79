package exchange

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/config"
	"github.com/empowerID/RealTimeAuth/internal/ctxbind"
	"github.com/empowerID/RealTimeAuth/internal/idp"
	"github.com/empowerID/RealTimeAuth/internal/rtatoken"
	"github.com/empowerID/RealTimeAuth/internal/transport"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, idpSrv *httptest.Server) (addr string, verifier *rtatoken.Verifier, shutdown func()) {
	t.Helper()

	tlsConf, err := transport.GenerateEphemeralTLSConfig()
	require.NoError(t, err)

	listener, err := transport.Listen("127.0.0.1:0", tlsConf)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	providers := config.IdpProviders{
		Default: "azure",
		Azure: config.IdpProvider{
			IntrospectionURL: idpSrv.URL,
			ClientID:         "client",
			ClientSecret:     "secret",
		},
	}

	adapter := idp.New(providers, nil)
	signer := rtatoken.NewSigner(priv)
	srv := New(listener, adapter, signer, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Run(ctx) }()

	return listener.Addr().String(), rtatoken.NewVerifier(pub), func() {
		cancel()
		_ = listener.Close()
	}
}

// dialAndExchange sends req and returns the raw response bytes. A
// successful exchange responds with a JSON Response; a failed one responds
// with a short plain-text message, so callers decide how to parse it.
func dialAndExchange(t *testing.T, addr string, req Request) []byte {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, addr, &tls.Config{InsecureSkipVerify: true, NextProtos: []string{transport.ALPN}}, nil)
	require.NoError(t, err)
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = stream.Write(body)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return data
}

func TestExchangeHappyPath(t *testing.T) {
	idpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"active": true, "sub": "user-42"})
	}))
	defer idpSrv.Close()

	addr, verifier, shutdown := startTestServer(t, idpSrv)
	defer shutdown()

	data := dialAndExchange(t, addr, Request{
		GrantType:  GrantType,
		OAuthToken: "some-upstream-token",
		AgentID:    "agent-1",
	})

	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotEmpty(t, resp.RTAToken)

	raw, err := base64.StdEncoding.DecodeString(resp.RTAToken)
	require.NoError(t, err)

	tok, err := rtatoken.Decode(raw)
	require.NoError(t, err)

	require.NoError(t, verifier.Validate(tok, ctxbind.Derive("user-42"), time.Hour))
}

func TestExchangeRejectsWrongGrantType(t *testing.T) {
	idpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer idpSrv.Close()

	addr, _, shutdown := startTestServer(t, idpSrv)
	defer shutdown()

	data := dialAndExchange(t, addr, Request{GrantType: "not-the-right-grant", OAuthToken: "x"})
	require.Contains(t, string(data), "unsupported grant_type")
}

func TestExchangeSurfacesIntrospectionFailure(t *testing.T) {
	idpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer idpSrv.Close()

	addr, _, shutdown := startTestServer(t, idpSrv)
	defer shutdown()

	data := dialAndExchange(t, addr, Request{GrantType: GrantType, OAuthToken: "bad-token"})
	require.Contains(t, string(data), "introspection returned non-2xx status")
}
