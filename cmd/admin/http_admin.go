package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:12300", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(endpoint(*baseURL, "state"))
	exitOnResponse(resp, err)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:12300", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, endpoint(*baseURL, "snapshot"), nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	exitOnResponse(resp, err)
}

// giveCmd: admin give [-url ...] <item> <agent> <amount>
func giveCmd(args []string) {
	fs := flag.NewFlagSet("give", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:12300", "server base url")
	_ = fs.Parse(args)
	if fs.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "usage: admin give [-url URL] <item> <agent> <amount>")
		os.Exit(2)
	}
	resp, err := postCommand(*baseURL, append([]string{"give"}, fs.Args()...))
	exitOnResponse(resp, err)
}

// commandCmd sends an arbitrary operator command line.
func commandCmd(args []string) {
	fs := flag.NewFlagSet("command", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:12300", "server base url")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin command [-url URL] <verb> [args...]")
		os.Exit(2)
	}
	resp, err := postCommand(*baseURL, fs.Args())
	exitOnResponse(resp, err)
}

func postCommand(baseURL string, args []string) (*http.Response, error) {
	body, err := json.Marshal(map[string][]string{"args": args})
	if err != nil {
		return nil, err
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	return cl.Post(endpoint(baseURL, "command"), "application/json", bytes.NewReader(body))
}

func endpoint(baseURL, name string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/" + name
}

func exitOnResponse(resp *http.Response, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
