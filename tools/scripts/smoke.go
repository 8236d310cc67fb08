// Package main is a CI-friendly end-to-end smoke test against a running logvault.
//
// It validates:
//   - register + login for a fresh user
//   - empty history returns 404
//   - tail handshake + subprotocol selection
//   - create -> log.new pushed to the tail
//   - list contains the entry, and paging past it is empty
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "logvault.tail.v1"
	typeLogNew   = "log.new"
	maxReadBytes = 1 << 20
)

type logEntry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type envelope struct {
	V     int       `json:"v"`
	Type  string    `json:"type"`
	TS    time.Time `json:"ts"`
	Entry logEntry  `json:"entry"`
}

type client struct {
	base    string
	token   string
	http    *http.Client
	timeout time.Duration
}

func main() {
	var (
		base    = flag.String("url", "http://127.0.0.1:8080", "Base HTTP URL")
		origin  = flag.String("origin", "", "Origin header for the tail handshake (empty = none)")
		text    = flag.String("text", "smoke test entry", "Log message to create")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*base); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	c := &client{
		base:    strings.TrimRight(*base, "/"),
		http:    &http.Client{Timeout: *timeout},
		timeout: *timeout,
	}

	user := fmt.Sprintf("smoke%d", time.Now().UnixNano())
	creds := map[string]string{"username": user, "password": "smoke-password-1"}
	c.mustDo(root, http.MethodPost, "/register", creds, http.StatusCreated, nil)

	var login struct {
		Token string `json:"token"`
	}
	c.mustDo(root, http.MethodPost, "/login", creds, http.StatusOK, &login)
	if strings.TrimSpace(login.Token) == "" {
		fatalf("login returned empty token")
	}
	c.token = login.Token

	c.mustDo(root, http.MethodGet, "/logs", nil, http.StatusNotFound, nil)

	conn := c.mustTail(root, *origin)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	var created logEntry
	c.mustDo(root, http.MethodPost, "/logs", map[string]string{"message": *text, "level": "info"}, http.StatusCreated, &created)
	if created.ID == "" || created.Owner != user || created.Message != *text {
		fatalf("unexpected created entry: %+v", created)
	}

	pushed := mustReadEnvelope(root, conn, *timeout)
	if pushed.Type != typeLogNew || pushed.Entry.ID != created.ID {
		fatalf("tail mismatch: got type=%q id=%q want type=%q id=%q", pushed.Type, pushed.Entry.ID, typeLogNew, created.ID)
	}

	var listed []logEntry
	c.mustDo(root, http.MethodGet, "/logs", nil, http.StatusOK, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID {
		fatalf("list mismatch: %+v", listed)
	}

	var after []logEntry
	c.mustDo(root, http.MethodGet, "/logs?after="+url.QueryEscape(created.ID), nil, http.StatusOK, &after)
	if len(after) != 0 {
		fatalf("expected empty page after %s, got %d", created.ID, len(after))
	}

	if *verbose {
		fmt.Printf("user=%s entry=%s pushed_ts=%s\n", user, created.ID, pushed.TS.Format(time.RFC3339Nano))
	}
	fmt.Printf("OK: user=%s id=%s\n", user, created.ID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *client) mustDo(parent context.Context, method, path string, body any, wantStatus int, out any) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal %s %s: %v", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		fatalf("build %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

func (c *client) mustTail(parent context.Context, origin string) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/logs/stream"
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("tail connect: %v", err)
	}
	if got := conn.Subprotocol(); got != subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustReadEnvelope(parent context.Context, conn *websocket.Conn, timeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	mt, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("tail read: %v", err)
	}
	if mt != websocket.MessageText {
		fatalf("tail: unexpected message type %v", mt)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("tail: bad json: %v", err)
	}
	if env.V != 1 {
		fatalf("tail: unsupported envelope version %d", env.V)
	}
	return env
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
