package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// metricsCmd prints a running server's /metrics, optionally only the lines
// with the given prefix.
func metricsCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	prefix := fs.String("prefix", "", "only metric lines starting with this prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: %s", u, resp.Status)
	}
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if *prefix != "" && !strings.HasPrefix(line, *prefix) {
			continue
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
