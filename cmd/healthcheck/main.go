// Command healthcheck queries a running passvault server and exits non-zero
// unless /api/v1/health reports the server usable. It has no dependencies so
// it can ship in a scratch image next to the server binary.
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

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return checkHealth(ctx, http.DefaultClient, "http://"+loopbackAddr(os.Getenv("PASSVAULT_LISTEN_ADDR")), os.Stderr)
}

// healthBody is the subset of the health response the check reads.
type healthBody struct {
	Status string `json:"status"`
}

// checkHealth returns 0 when the server answers 200 with status ok or degraded.
// A degraded server stays in rotation; the reason is written to errOut.
func checkHealth(ctx context.Context, client *http.Client, baseURL string, errOut io.Writer) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/health", nil)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "health: HTTP %d\n", resp.StatusCode)
		return 1
	}

	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		fmt.Fprintf(errOut, "health: %v\n", err)
		return 1
	}
	switch body.Status {
	case "ok":
		return 0
	case "degraded":
		fmt.Fprintln(errOut, "health: degraded")
		return 0
	default:
		fmt.Fprintf(errOut, "health: status %q\n", body.Status)
		return 1
	}
}

// loopbackAddr rewrites a bind-all listen address to loopback; the check runs
// in the server's own container.
func loopbackAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return defaultAddr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
