package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medstra/streaming-avatar/internal/audio"
	"github.com/medstra/streaming-avatar/internal/events"
	"github.com/medstra/streaming-avatar/internal/frame"
)

// blockingCapture yields a configurable number of buffers then blocks
// until stopped, like a real microphone with a quiet room.
type blockingCapture struct {
	mu      sync.Mutex
	buffers int
	started bool
	stopped chan struct{}
}

func newBlockingCapture(buffers int) *blockingCapture {
	return &blockingCapture{buffers: buffers, stopped: make(chan struct{})}
}

func (b *blockingCapture) Start(audio.Constraints) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

func (b *blockingCapture) Read(dst []float32) (int, error) {
	b.mu.Lock()
	remaining := b.buffers
	if remaining > 0 {
		b.buffers--
	}
	b.mu.Unlock()
	if remaining == 0 {
		<-b.stopped
		return 0, io.EOF
	}
	for i := range dst {
		dst[i] = 0.1
	}
	return len(dst), nil
}

func (b *blockingCapture) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		b.started = false
		close(b.stopped)
	}
	return nil
}

// fakeControlPlane is an httptest server covering the control calls and
// the side-channel upgrade endpoint.
type fakeControlPlane struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	taskCalls []map[string]string
	stopCalls int
	wsClosed  atomic.Bool

	binaryFrames chan []byte
	sideSend     chan string
}

func newFakeControlPlane(t *testing.T) *fakeControlPlane {
	f := &fakeControlPlane{
		binaryFrames: make(chan []byte, 32),
		sideSend:     make(chan string, 8),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/streaming.new", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"invalid token"}`)
			return
		}
		io.WriteString(w, `{"data":{"session_id":"sess-1","access_token":"room-token","url":"wss://room.example/r","is_paid":true,"session_duration_limit":600}}`)
	})
	mux.HandleFunc("/v1/streaming.start", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{}}`)
	})
	mux.HandleFunc("/v1/streaming.task", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.taskCalls = append(f.taskCalls, body)
		f.mu.Unlock()
		io.WriteString(w, `{"data":{}}`)
	})
	mux.HandleFunc("/v1/streaming.stop", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.stopCalls++
		f.mu.Unlock()
		io.WriteString(w, `{"data":{}}`)
	})
	mux.HandleFunc("/v1/ws/streaming.chat", func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("side-channel upgrade: %v", err)
			return
		}
		go func() {
			for msg := range f.sideSend {
				conn.WriteMessage(websocket.TextMessage, []byte(msg))
			}
		}()
		for {
			msgType, raw, err := conn.ReadMessage()
			if err != nil {
				f.wsClosed.Store(true)
				return
			}
			if msgType == websocket.BinaryMessage {
				f.binaryFrames <- raw
			}
		}
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeControlPlane) tasks() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(f.taskCalls))
	copy(out, f.taskCalls)
	return out
}

func newTestClient(t *testing.T, f *fakeControlPlane) (*Client, *events.Bridge) {
	bridge := events.NewBridge()
	c := NewClient(Config{Token: "test-token", BasePath: f.srv.URL}, bridge)
	c.SetCaptureSource(newBlockingCapture(0))
	return c, bridge
}

func TestNewSessionUnauthorized(t *testing.T) {
	f := newFakeControlPlane(t)
	bridge := events.NewBridge()
	c := NewClient(Config{Token: "wrong-token", BasePath: f.srv.URL}, bridge)

	_, err := c.NewSession(context.Background(), StartRequest{AvatarName: "ann"})
	if err == nil {
		t.Fatal("NewSession with bad token succeeded")
	}
	if !errors.Is(err, ErrSessionCreate) {
		t.Errorf("err = %v, want ErrSessionCreate wrap", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.Status)
	}
	if apiErr.Body != `{"message":"invalid token"}` {
		t.Errorf("body = %q", apiErr.Body)
	}
	if c.SessionID() != "" {
		t.Errorf("session id = %q after failed create, want empty", c.SessionID())
	}
}

func TestNewSessionParsesDataEnvelope(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)

	info, err := c.NewSession(context.Background(), StartRequest{AvatarName: "ann", Language: "en"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if info.SessionID != "sess-1" || info.AccessToken != "room-token" || info.URL != "wss://room.example/r" {
		t.Errorf("info = %+v", info)
	}
	if !info.IsPaid || info.SessionDurationLimit != 600 {
		t.Errorf("info = %+v", info)
	}
	if c.SessionID() != "sess-1" {
		t.Errorf("client session id = %q", c.SessionID())
	}
}

func TestNewSessionSendsFixedContractFields(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		io.WriteString(w, `{"data":{"session_id":"s"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "t", BasePath: srv.URL}, events.NewBridge())
	if _, err := c.NewSession(context.Background(), StartRequest{AvatarName: "ann", KnowledgeBase: "kb"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if captured["version"] != "v2" || captured["video_encoding"] != "H264" || captured["source"] != "sdk" {
		t.Errorf("fixed fields missing: %v", captured)
	}
	if captured["avatar_name"] != "ann" || captured["knowledge_base"] != "kb" {
		t.Errorf("request fields missing: %v", captured)
	}
}

func TestOperationsRequireActiveSession(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if err := c.StartStreaming(ctx); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("StartStreaming err = %v", err)
	}
	if err := c.Speak(ctx, "hi", TaskTypeTalk, TaskModeAsync); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Speak err = %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("StartVoiceChat err = %v", err)
	}
}

func TestSpeakFastPathUsesSideChannel(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	defer c.CloseVoiceChat()

	if err := c.Speak(ctx, "hello there", TaskTypeTalk, TaskModeAsync); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	select {
	case raw := <-f.binaryFrames:
		codec, err := frame.NewCodec()
		if err != nil {
			t.Fatalf("NewCodec: %v", err)
		}
		decoded, err := codec.Decode(raw)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.Text == nil || decoded.Text.Text != "hello there" {
			t.Fatalf("frame = %+v, want text frame", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived on side-channel")
	}
	if n := len(f.tasks()); n != 0 {
		t.Errorf("task endpoint hit %d times on fast path, want 0", n)
	}
}

func TestSpeakSyncAndRepeatGoOverHTTP(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	defer c.CloseVoiceChat()

	if err := c.Speak(ctx, "say this", TaskTypeRepeat, TaskModeAsync); err != nil {
		t.Fatalf("Speak repeat: %v", err)
	}
	if err := c.Speak(ctx, "blocking talk", TaskTypeTalk, TaskModeSync); err != nil {
		t.Fatalf("Speak sync: %v", err)
	}

	tasks := f.tasks()
	if len(tasks) != 2 {
		t.Fatalf("task calls = %d, want 2: %v", len(tasks), tasks)
	}
	if tasks[0]["task_type"] != "repeat" || tasks[0]["text"] != "say this" {
		t.Errorf("first task = %v", tasks[0])
	}
	if tasks[1]["task_mode"] != "sync" || tasks[1]["text"] != "blocking talk" {
		t.Errorf("second task = %v", tasks[1])
	}
}

func TestSpeakFallsBackToHTTPWithoutVoiceChat(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.Speak(ctx, "no socket yet", TaskTypeTalk, TaskModeAsync); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	tasks := f.tasks()
	if len(tasks) != 1 || tasks[0]["text"] != "no socket yet" {
		t.Fatalf("task calls = %v, want one fallback call", tasks)
	}
}

func TestVoiceChatStreamsMicrophoneFrames(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	c.SetCaptureSource(newBlockingCapture(2))
	ctx := context.Background()

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, true); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	defer c.CloseVoiceChat()

	codec, err := frame.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case raw := <-f.binaryFrames:
			decoded, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if decoded.Audio == nil {
				t.Fatalf("frame %d is not audio: %+v", i, decoded)
			}
			if decoded.Audio.SampleRate != audio.SampleRate || decoded.Audio.NumChannels != audio.Channels {
				t.Errorf("frame %d format = %d/%d", i, decoded.Audio.SampleRate, decoded.Audio.NumChannels)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("audio frame %d never arrived", i)
		}
	}
}

func TestSideChannelEventsReachBridge(t *testing.T) {
	f := newFakeControlPlane(t)
	c, bridge := newTestClient(t, f)
	ctx := context.Background()

	silence := make(chan events.UserSilenceEvent, 1)
	bridge.On(events.UserSilence, func(ev events.Event) {
		silence <- ev.(events.UserSilenceEvent)
	})

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, true); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	defer c.CloseVoiceChat()

	f.sideSend <- `{"event_type":"user_silence","silence_times":2,"count_down":5}`
	select {
	case ev := <-silence:
		if ev.SilenceTimes != 2 || ev.CountDown != 5 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("silence event never delivered")
	}
}

func TestMalformedSideChannelFrameKeepsChannelOpen(t *testing.T) {
	f := newFakeControlPlane(t)
	c, bridge := newTestClient(t, f)
	ctx := context.Background()

	stops := make(chan struct{}, 1)
	bridge.On(events.UserStop, func(events.Event) { stops <- struct{}{} })

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	defer c.CloseVoiceChat()

	// Garbage JSON first; a valid event after it must still arrive.
	f.sideSend <- `{{{not json`
	f.sideSend <- `{"event_type":"user_stop"}`
	select {
	case <-stops:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not survive malformed message")
	}
}

func TestCloseVoiceChatIsIdempotent(t *testing.T) {
	f := newFakeControlPlane(t)
	c, _ := newTestClient(t, f)
	ctx := context.Background()

	c.CloseVoiceChat() // nothing running yet

	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	c.CloseVoiceChat()
	c.CloseVoiceChat()
}

func TestStopSessionTearsDownLocallyFirst(t *testing.T) {
	// The stop endpoint verifies the side-channel is already gone.
	orderOK := make(chan bool, 1)
	mux := http.NewServeMux()
	upgrader := websocket.Upgrader{}
	var wsClosed atomic.Bool
	mux.HandleFunc("/v1/streaming.new", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"session_id":"sess-1"}}`)
	})
	mux.HandleFunc("/v1/ws/streaming.chat", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wsClosed.Store(true)
				return
			}
		}
	})
	mux.HandleFunc("/v1/streaming.stop", func(w http.ResponseWriter, r *http.Request) {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) && !wsClosed.Load() {
			time.Sleep(5 * time.Millisecond)
		}
		orderOK <- wsClosed.Load()
		io.WriteString(w, `{"data":{}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Config{Token: "t", BasePath: srv.URL}, events.NewBridge())
	c.SetCaptureSource(newBlockingCapture(0))
	ctx := context.Background()
	if _, err := c.NewSession(ctx, StartRequest{AvatarName: "ann"}); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := c.StartVoiceChat(ctx, false); err != nil {
		t.Fatalf("StartVoiceChat: %v", err)
	}
	if err := c.StopSession(ctx); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	select {
	case ok := <-orderOK:
		if !ok {
			t.Fatal("remote stop observed while side-channel still open")
		}
	default:
		t.Fatal("stop endpoint never hit")
	}
	if c.SessionID() != "" {
		t.Errorf("session id = %q after stop, want empty", c.SessionID())
	}
}
