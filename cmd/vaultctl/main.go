// vaultctl is a small ops tool for the willvault service: trigger an
// escalation sweep or dump a testator's audit trail.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		baseURL  = flag.String("base", envOr("WILLVAULT_BASE_URL", "http://localhost:8086"), "willvault base URL")
		sweep    = flag.Bool("sweep", false, "run one escalation sweep")
		sweepNow = flag.String("now", "", "simulated sweep time (RFC3339, non-prod only)")
		audit    = flag.String("audit", "", "dump audit trail for testator id")
		limit    = flag.Int("limit", 100, "audit entries to fetch")
	)
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: 60 * time.Second}

	switch {
	case *sweep:
		u := base + "/v1/admin/sweep"
		if *sweepNow != "" {
			u += "?now=" + url.QueryEscape(*sweepNow)
		}
		resp, err := client.Post(u, "application/json", nil)
		if err != nil {
			fatal("sweep: %v", err)
		}
		printBody(resp)
	case *audit != "":
		u := fmt.Sprintf("%s/v1/testators/%s/audit?limit=%d", base, url.PathEscape(*audit), *limit)
		resp, err := client.Get(u)
		if err != nil {
			fatal("audit: %v", err)
		}
		printBody(resp)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printBody(resp *http.Response) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fatal("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var pretty any
	if err := json.Unmarshal(body, &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println(strings.TrimSpace(string(body)))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
