// Package main probes the local server's liveness endpoint for container
// health checks. It exits non-zero when the server is not alive.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/garyellow/edu-advisor/internal/config"
)

func main() {
	port := os.Getenv(config.EnvPort)
	if port == "" {
		port = "10000"
	}

	client := &http.Client{Timeout: 8 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/livez", port))
	if err != nil {
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
