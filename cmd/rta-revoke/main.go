// Command rta-revoke publishes a revocation event for a session id onto the
// revocation broker, to be picked up by every enforcement node's
// subscriber.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/config"
	"github.com/empowerID/RealTimeAuth/internal/revocation"
)

func main() {
	sessionIDHex := flag.String("session-id", "", "hex-encoded session id to revoke")
	redisURL := flag.String("redis-url", "", "revocation broker URL (defaults to configured redis.url)")
	flag.Parse()

	if *sessionIDHex == "" {
		fmt.Fprintln(os.Stderr, "rta-revoke: -session-id is required")
		os.Exit(2)
	}

	url := *redisURL
	if url == "" {
		settings, err := config.Load("config")
		if err != nil {
			fmt.Fprintf(os.Stderr, "rta-revoke: loading configuration: %v\n", err)
			os.Exit(1)
		}
		url = settings.Redis.URL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := revocation.Publish(ctx, url, *sessionIDHex); err != nil {
		fmt.Fprintf(os.Stderr, "rta-revoke: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("revoked session %s\n", *sessionIDHex)
}
