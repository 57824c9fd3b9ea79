// Command rta-client is a minimal QUIC client for exercising the exchange
// and enforcement endpoints by hand.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/enforcement"
	"github.com/empowerID/RealTimeAuth/internal/exchange"
	"github.com/empowerID/RealTimeAuth/internal/transport"
	"github.com/quic-go/quic-go"
)

func main() {
	mode := flag.String("mode", "exchange", "exchange | enforce")
	addr := flag.String("addr", "127.0.0.1:8082", "server address")
	oauthToken := flag.String("oauth-token", "", "upstream OAuth bearer token (exchange mode)")
	agentID := flag.String("agent-id", "", "caller agent id (exchange mode)")
	provider := flag.String("provider", "", "IdP provider key (exchange mode)")
	rtaToken := flag.String("rtatoken", "", "base64-encoded RTA token (enforce mode)")
	resource := flag.String("resource", "", "resource to request (enforce mode)")
	insecure := flag.Bool("insecure", true, "skip TLS certificate verification")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := quic.DialAddr(ctx, *addr, &tls.Config{InsecureSkipVerify: *insecure, NextProtos: []string{transport.ALPN}}, nil)
	if err != nil {
		log.Fatalf("connecting to %s: %v", *addr, err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		log.Fatalf("opening stream: %v", err)
	}

	var body []byte
	switch *mode {
	case "exchange":
		body, err = json.Marshal(exchange.Request{
			GrantType:  exchange.GrantType,
			OAuthToken: *oauthToken,
			AgentID:    *agentID,
			Provider:   *provider,
		})
	case "enforce":
		body, err = json.Marshal(enforcement.Request{
			RTAToken: *rtaToken,
			Resource: *resource,
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q: want exchange or enforce\n", *mode)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("marshaling request: %v", err)
	}

	if _, err := stream.Write(body); err != nil {
		log.Fatalf("writing request: %v", err)
	}
	if err := stream.Close(); err != nil {
		log.Fatalf("closing send side: %v", err)
	}

	resp, err := io.ReadAll(stream)
	if err != nil {
		log.Fatalf("reading response: %v", err)
	}

	fmt.Println(string(resp))
}
