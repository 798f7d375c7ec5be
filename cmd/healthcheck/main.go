// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the otapushd /health endpoint returns HTTP 200,
// and 1 otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
//
// The port follows OTAPUSH_PORT so the probe matches the server's env config.
package main

import (
	"flag"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("OTAPUSH_PORT")
	if port == "" {
		port = "8080"
	}
	url := flag.String("url", "http://localhost:"+port+"/health", "health endpoint to probe")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
