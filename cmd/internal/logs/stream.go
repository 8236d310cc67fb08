package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"logvault/cmd/internal/auth/authctx"
	"logvault/cmd/internal/httpx"
)

const (
	// StreamSubprotocol must be offered by tail clients.
	StreamSubprotocol = "logvault.tail.v1"

	// EnvelopeVersion is the "v" field of every stream frame.
	EnvelopeVersion = 1

	TypeLogNew = "log.new"

	streamMaxPingFailures = 3
	streamReadLimit       = 4 << 10
)

// Envelope is one server-to-client stream frame.
type Envelope struct {
	V     int       `json:"v"`
	Type  string    `json:"type"`
	TS    time.Time `json:"ts"`
	Entry LogEntry  `json:"entry"`
}

// StreamRecorder observes tail connections (e.g. for metrics).
type StreamRecorder interface {
	StreamOpened()
	StreamClosed(reason string)
}

type noopStreamRecorder struct{}

func (noopStreamRecorder) StreamOpened()       {}
func (noopStreamRecorder) StreamClosed(string) {}

// Stream is the GET /logs/stream WebSocket endpoint. It only writes: each
// entry the caller creates while connected is pushed as a log.new envelope.
type Stream struct {
	log    *slog.Logger
	cfg    Config
	broker *Broker
	rec    StreamRecorder
}

func NewStream(log *slog.Logger, cfg Config, broker *Broker) *Stream {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Stream{
		log:    log,
		cfg:    cfg,
		broker: broker,
		rec:    noopStreamRecorder{},
	}
}

// SetRecorder installs r. Call before serving.
func (st *Stream) SetRecorder(r StreamRecorder) {
	if r != nil {
		st.rec = r
	}
}

func (st *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	owner, ok := authctx.SubjectFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	if err := st.enforceOrigin(r); err != nil {
		st.log.Info("logs.stream.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}

	// The stream outlives the server's request deadlines; frames carry their own timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	// Subscribe before the handshake completes so nothing created after the
	// client sees the 101 is missed.
	sub := st.broker.Subscribe(owner)
	defer st.broker.Unsubscribe(sub)

	// enforceOrigin is the only origin policy; the library's own host:port
	// matching would refuse allowed origins that carry a port.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{StreamSubprotocol},
		InsecureSkipVerify: true,
	})
	if err != nil {
		st.log.Info("logs.stream.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != StreamSubprotocol {
		st.log.Info("logs.stream.reject.subprotocol", "got", sp, "want", StreamSubprotocol)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+StreamSubprotocol+" required")
		return
	}
	conn.SetReadLimit(streamReadLimit)

	// Clients never send data frames; CloseRead services control frames
	// (pong, close) and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st.rec.StreamOpened()
	st.log.Info("logs.stream.open", "owner", owner, "remote", r.RemoteAddr)

	reason := st.run(ctx, cancel, conn, sub)

	st.rec.StreamClosed(reason)
	st.log.Info("logs.stream.close", "owner", owner, "reason", reason)
}

// run pumps entries and heartbeats until the peer leaves or the subscriber is dropped.
func (st *Stream) run(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *Subscriber) string {
	heartbeatDone := make(chan struct{})
	heartbeatFailed := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(st.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, st.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				st.log.Info("logs.stream.ping.fail", "owner", sub.Owner, "failures", failures, "err", err)
				if failures >= streamMaxPingFailures {
					close(heartbeatFailed)
					cancel()
					return
				}
			}
		}
	}()
	defer func() {
		cancel()
		<-heartbeatDone
	}()

	for {
		select {
		case <-heartbeatFailed:
			_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
			return "heartbeat"
		case <-ctx.Done():
			select {
			case <-heartbeatFailed:
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return "heartbeat"
			default:
			}
			return "peer_closed"
		case <-sub.Done():
			if sub.Dropped() {
				_ = conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
				return "dropped"
			}
			_ = conn.Close(websocket.StatusGoingAway, "unsubscribed")
			return "unsubscribed"
		case e := <-sub.C:
			if err := st.write(ctx, conn, e); err != nil {
				st.log.Info("logs.stream.write.fail", "owner", sub.Owner, "close_status", websocket.CloseStatus(err), "err", err)
				return "write_failed"
			}
		}
	}
}

func (st *Stream) write(parent context.Context, conn *websocket.Conn, e LogEntry) error {
	b, err := json.Marshal(Envelope{
		V:     EnvelopeVersion,
		Type:  TypeLogNew,
		TS:    time.Now().UTC(),
		Entry: e,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, st.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- origin policy ----

func (st *Stream) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if st.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	originHost := originHostOnly(origin)
	// Same-host requests are always fine.
	if originHost != "" && originHost == originHostOnly(r.Host) {
		return nil
	}

	for _, a := range st.cfg.AllowedOrigins {
		if a == "*" || a == origin {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
