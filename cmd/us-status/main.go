// Command us-status queries a running us-live daemon and prints its status
// as JSON. It exits non-zero when the daemon is unreachable or not serving.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"stockvault/pkg/stockvault"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "daemon base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := stockvault.NewClient(*addr)
	if err := c.Health(ctx); err != nil {
		log.Fatalf("unhealthy: %v", err)
	}
	st, err := c.Status(ctx)
	if err != nil {
		log.Fatalf("status: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		log.Fatalf("encoding status: %v", err)
	}
}
