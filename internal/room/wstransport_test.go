package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSTransportDeliversEnvelopeEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(wireEnvelope{Event: EventTrackSubscribed, Track: &Track{ID: "v1", Kind: TrackKindVideo}})
		conn.WriteJSON(wireEnvelope{Event: EventData, Payload: []byte(`{"type":"avatar_start_talking"}`)})
		conn.WriteJSON(wireEnvelope{Event: EventDisconnected, Reason: "session over"})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewWSTransport()
	tr.PrepareConnection(wsURL, "tok")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx, wsURL, "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var got []TransportEvent
	for ev := range tr.Events() {
		got = append(got, ev)
	}
	if gotToken != "tok" {
		t.Errorf("access_token = %q, want tok", gotToken)
	}
	if len(got) != 3 {
		t.Fatalf("received %d events, want 3: %+v", len(got), got)
	}
	if got[0].Kind != EventTrackSubscribed || got[0].Track.ID != "v1" {
		t.Errorf("first event = %+v, want video track subscribe", got[0])
	}
	if got[1].Kind != EventData || string(got[1].Payload) != `{"type":"avatar_start_talking"}` {
		t.Errorf("second event = %+v, want data payload", got[1])
	}
	if got[2].Kind != EventDisconnected || got[2].Reason != "session over" {
		t.Errorf("last event = %+v, want disconnect with reason", got[2])
	}
	tr.Close()
}

func TestWSTransportRemoteDropEmitsSingleDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the socket without a close frame.
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	tr := NewWSTransport()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := tr.Connect(context.Background(), wsURL, "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var disconnects int
	for ev := range tr.Events() {
		if ev.Kind == EventDisconnected {
			disconnects++
		}
	}
	if disconnects != 1 {
		t.Fatalf("disconnect events = %d, want 1", disconnects)
	}
	// Closing after the remote drop must not panic or emit again.
	tr.Close()
}

func TestWSTransportDisconnectLandsWhenConsumerStalls(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sent := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Overflow the event buffer, then drop the socket.
		for i := 0; i < 100; i++ {
			conn.WriteJSON(wireEnvelope{Event: EventData, Payload: []byte(`{"type":"avatar_talking_message"}`)})
		}
		conn.UnderlyingConn().Close()
		close(sent)
	}))
	defer srv.Close()

	tr := NewWSTransport()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	if err := tr.Connect(context.Background(), wsURL, "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Stall the consumer until the server is done, then drain everything
	// buffered. The last event must be the disconnect and the channel must
	// close rather than wedge the reader.
	<-sent
	time.Sleep(100 * time.Millisecond)

	var last TransportEvent
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				if last.Kind != EventDisconnected {
					t.Fatalf("final event = %+v, want disconnected", last)
				}
				return
			}
			last = ev
		case <-deadline:
			t.Fatal("events channel never closed")
		}
	}
}

func TestWSTransportConnectFailsLoudly(t *testing.T) {
	tr := NewWSTransport()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Connect(ctx, "ws://127.0.0.1:1/room", "tok"); err == nil {
		t.Fatal("Connect to dead endpoint succeeded, want error")
	}
}
