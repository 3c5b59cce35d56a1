package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const probeTimeout = 3 * time.Second

// health mirrors the fields of GET /api/v1/health the probe acts on.
type health struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func main() {
	addr := normalizeAddr(os.Getenv("TOKENKEEPER_LISTEN_ADDR"))
	os.Exit(check(fmt.Sprintf("http://%s/api/v1/health", addr), os.Stderr))
}

// check fetches url and returns the process exit code. The daemon is healthy
// only when it answers 200 with status "ok" and a reachable credential store;
// otherwise the reason is written to out.
func check(url string, out io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}

	resp, err := (&http.Client{Timeout: probeTimeout}).Do(req)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	var h health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&h); err != nil {
		fmt.Fprintf(out, "healthcheck: status %d, unreadable body: %v\n", resp.StatusCode, err)
		return 1
	}

	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Store == "unavailable" {
		fmt.Fprintf(out, "healthcheck: status %d, service %s, credential store %s\n", resp.StatusCode, h.Status, h.Store)
		return 1
	}
	return 0
}

// normalizeAddr points the probe at loopback when the daemon binds all
// interfaces, since the probe runs inside the same container.
func normalizeAddr(raw string) string {
	const fallback = "127.0.0.1:8080"

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return fallback
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
