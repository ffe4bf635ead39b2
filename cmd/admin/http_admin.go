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
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	os.Exit(doAdminRequest(http.MethodGet, *baseURL, "/admin/v1/state", nil))
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	os.Exit(doAdminRequest(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil))
}

func spawnCmd(args []string) {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	typ := fs.String("type", "", "structure type id (required)")
	owner := fs.String("owner", "", "owner player id (required)")
	hp := fs.Int("hp", 0, "starting hp (0 = full)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*typ) == "" || strings.TrimSpace(*owner) == "" {
		fmt.Fprintln(os.Stderr, "missing -type or -owner")
		os.Exit(2)
	}
	os.Exit(doAdminRequest(http.MethodPost, *baseURL, "/admin/v1/buildings", map[string]any{
		"type": *typ, "owner": *owner, "hp": *hp,
	}))
}

func damageCmd(args []string) {
	fs := flag.NewFlagSet("damage", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	target := fs.String("target", "", "building id (required)")
	amount := fs.Int("amount", 0, "damage amount (negative heals)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*target) == "" {
		fmt.Fprintln(os.Stderr, "missing -target")
		os.Exit(2)
	}
	os.Exit(doAdminRequest(http.MethodPost, *baseURL, "/admin/v1/damage", map[string]any{
		"target": *target, "amount": *amount,
	}))
}

// doAdminRequest prints the response body and returns a process exit code.
func doAdminRequest(method, baseURL, path string, body any) int {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			return 1
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
