package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	get(*baseURL, "/admin/v1/state", nil)
}

func battlesCmd(args []string) {
	fs := flag.NewFlagSet("battles", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	n := fs.Int("n", 20, "battles to list")
	_ = fs.Parse(args)
	get(*baseURL, "/admin/v1/battles", url.Values{"n": {strconv.Itoa(*n)}})
}

func killsCmd(args []string) {
	fs := flag.NewFlagSet("kills", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	battle := fs.String("battle", "", "battle id (default: the battle in progress)")
	_ = fs.Parse(args)

	q := url.Values{}
	if strings.TrimSpace(*battle) != "" {
		q.Set("battle", strings.TrimSpace(*battle))
	}
	get(*baseURL, "/admin/v1/kills", q)
}

// get prints the response body as-is; the admin endpoints already emit JSON.
func get(baseURL, path string, q url.Values) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Print(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
