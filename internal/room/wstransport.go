package room

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medstra/streaming-avatar/internal/logging"
)

const prepareDialTimeout = 3 * time.Second

// wireEnvelope is the JSON layout of one transport message. Payload is
// base64 on the wire and decoded by encoding/json.
type wireEnvelope struct {
	Event   TransportEventKind `json:"event"`
	Track   *Track             `json:"track,omitempty"`
	Payload []byte             `json:"payload,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

// WSTransport speaks the JSON signaling envelope over a websocket. One
// value serves one connection; create a fresh transport per session.
type WSTransport struct {
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan TransportEvent

	closeOnce  sync.Once
	disconnect sync.Once
}

func NewWSTransport() *WSTransport {
	return &WSTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events: make(chan TransportEvent, 64),
	}
}

// PrepareConnection warms up DNS and the TCP path to the room host so the
// later Connect handshake is faster. Failures are ignored; this is purely
// an optimization.
func (t *WSTransport) PrepareConnection(rawURL, _ string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "wss", "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	conn, err := net.DialTimeout("tcp", host, prepareDialTimeout)
	if err != nil {
		logging.Debugw("room connection warmup failed", "host", host, "err", err)
		return
	}
	conn.Close()
}

// Connect dials the room and starts the reader. The access token travels
// as a query parameter, matching the signaling server's contract.
func (t *WSTransport) Connect(ctx context.Context, rawURL, token string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse room url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	conn, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect room transport: %w", err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	go t.readLoop(conn)
	logging.Infow("room transport connected", "host", u.Host)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		var env wireEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			reason := "connection closed"
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = err.Error()
			}
			t.emitDisconnect(reason)
			return
		}
		ev := TransportEvent{Kind: env.Event, Payload: env.Payload, Reason: env.Reason}
		if env.Track != nil {
			ev.Track = *env.Track
		}
		if env.Event == EventDisconnected {
			t.emitDisconnect(env.Reason)
			return
		}
		select {
		case t.events <- ev:
		default:
			logging.Warnw("room transport event dropped, consumer too slow", "kind", env.Event)
		}
	}
}

// emitDisconnect delivers the single disconnected event and closes the
// stream. Safe against the race between a remote close and a local Close.
// A full buffer evicts the oldest pending event rather than blocking, so
// the terminal disconnect always lands even with a stalled consumer.
func (t *WSTransport) emitDisconnect(reason string) {
	t.disconnect.Do(func() {
		if reason == "" {
			reason = "disconnected"
		}
		ev := TransportEvent{Kind: EventDisconnected, Reason: reason}
		for {
			select {
			case t.events <- ev:
				close(t.events)
				return
			default:
			}
			select {
			case dropped := <-t.events:
				logging.Warnw("room transport event dropped, consumer too slow", "kind", dropped.Kind)
			default:
			}
		}
	})
}

func (t *WSTransport) Events() <-chan TransportEvent {
	return t.events
}

// Close tears the connection down. The reader observes the closed socket
// and emits the disconnected event.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
				time.Now().Add(time.Second))
			err = conn.Close()
		} else {
			// Never connected; deliver the terminal event ourselves.
			t.emitDisconnect("closed before connect")
		}
	})
	return err
}
