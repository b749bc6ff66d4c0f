// Package session drives the avatar session lifecycle: control-plane HTTP
// calls, the realtime side-channel websocket, and the outbound audio
// pipeline.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medstra/streaming-avatar/internal/audio"
	"github.com/medstra/streaming-avatar/internal/events"
	"github.com/medstra/streaming-avatar/internal/frame"
	"github.com/medstra/streaming-avatar/internal/logging"
)

// TaskType selects how the avatar treats task text.
type TaskType string

// TaskMode selects whether the task call blocks until speech completes.
type TaskMode string

const (
	TaskTypeTalk   TaskType = "talk"
	TaskTypeRepeat TaskType = "repeat"

	TaskModeSync  TaskMode = "sync"
	TaskModeAsync TaskMode = "async"
)

// AvatarQuality selects the video quality tier.
type AvatarQuality string

const (
	QualityLow    AvatarQuality = "low"
	QualityMedium AvatarQuality = "medium"
	QualityHigh   AvatarQuality = "high"
)

// ElevenLabsSettings tunes the ElevenLabs voice model.
type ElevenLabsSettings struct {
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// VoiceSettings configures the avatar's voice.
type VoiceSettings struct {
	VoiceID            string              `json:"voice_id,omitempty"`
	Rate               float64             `json:"rate,omitempty"`
	Emotion            string              `json:"emotion,omitempty"`
	ElevenLabsSettings *ElevenLabsSettings `json:"elevenlabs_settings,omitempty"`
}

// StartRequest describes the avatar session to create.
type StartRequest struct {
	AvatarName         string        `json:"avatar_name"`
	Quality            AvatarQuality `json:"quality,omitempty"`
	Voice              VoiceSettings `json:"voice,omitempty"`
	Language           string        `json:"language,omitempty"`
	KnowledgeID        string        `json:"knowledge_id,omitempty"`
	KnowledgeBase      string        `json:"knowledge_base,omitempty"`
	DisableIdleTimeout bool          `json:"disable_idle_timeout,omitempty"`
}

// newSessionBody is the streaming.new payload. Version, encoding and
// source are fixed by the service contract.
type newSessionBody struct {
	StartRequest
	Version       string `json:"version"`
	VideoEncoding string `json:"video_encoding"`
	Source        string `json:"source"`
}

// SessionInfo is the created session's handle: the id correlates every
// later call, the token and URL connect the media room.
type SessionInfo struct {
	SessionID            string `json:"session_id"`
	AccessToken          string `json:"access_token"`
	URL                  string `json:"url"`
	IsPaid               bool   `json:"is_paid"`
	SessionDurationLimit int    `json:"session_duration_limit"`
}

// Config carries what the client needs to reach the control plane.
type Config struct {
	Token      string
	BasePath   string
	HTTPClient *http.Client
}

// Client owns one avatar session end to end. Not safe to reuse across
// sessions; create a new client per session.
type Client struct {
	token    string
	basePath string
	http     *http.Client
	bridge   *events.Bridge

	codecOnce sync.Once
	codec     *frame.Codec
	codecErr  error

	mu        sync.Mutex
	writeMu   sync.Mutex
	ws        *websocket.Conn
	pipeline  *audio.Pipeline
	wsCancel  context.CancelFunc
	wg        sync.WaitGroup
	capture   audio.CaptureSource
	sessionID string
	language  string
}

func NewClient(cfg Config, bridge *events.Bridge) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "https://api.heygen.com"
	}
	return &Client{
		token:    cfg.Token,
		basePath: strings.TrimRight(basePath, "/"),
		http:     httpClient,
		bridge:   bridge,
		capture:  audio.NewMicrophone(),
	}
}

// SetCaptureSource overrides the microphone, mainly for tests and
// non-interactive drivers. Must be called before StartVoiceChat.
func (c *Client) SetCaptureSource(src audio.CaptureSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = src
}

// SessionID returns the active session's id, empty before NewSession.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// post issues one control-plane call and decodes the response envelope's
// data field into out. Non-2xx responses become *APIError, never retried.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.basePath+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s response data: %w", path, err)
	}
	return nil
}

// NewSession creates the avatar session. On failure no session exists and
// the error wraps ErrSessionCreate around the underlying APIError.
func (c *Client) NewSession(ctx context.Context, req StartRequest) (*SessionInfo, error) {
	body := newSessionBody{
		StartRequest:  req,
		Version:       "v2",
		VideoEncoding: "H264",
		Source:        "sdk",
	}
	var info SessionInfo
	if err := c.post(ctx, "/v1/streaming.new", body, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}
	c.mu.Lock()
	c.sessionID = info.SessionID
	c.language = req.Language
	c.mu.Unlock()
	logging.Infow("session created", append(logging.SessionFields(info.SessionID), "is_paid", info.IsPaid)...)
	return &info, nil
}

// StartStreaming begins media flow for the created session.
func (c *Client) StartStreaming(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	return c.post(ctx, "/v1/streaming.start", map[string]string{"session_id": id}, nil)
}

// StartListening opens the avatar's STT window.
func (c *Client) StartListening(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	return c.post(ctx, "/v1/streaming.start_listening", map[string]string{"session_id": id}, nil)
}

// StopListening closes the avatar's STT window.
func (c *Client) StopListening(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	return c.post(ctx, "/v1/streaming.stop_listening", map[string]string{"session_id": id}, nil)
}

// Interrupt cuts the avatar off mid-utterance.
func (c *Client) Interrupt(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	return c.post(ctx, "/v1/streaming.interrupt", map[string]string{"session_id": id}, nil)
}

// Speak sends task text to the avatar. Non-blocking talk tasks ride the
// open side-channel as a TextFrame; everything else goes over HTTP, where
// sync mode blocks until the avatar finishes speaking.
func (c *Client) Speak(ctx context.Context, text string, taskType TaskType, taskMode TaskMode) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	if taskType == "" {
		taskType = TaskTypeTalk
	}
	if taskMode == "" {
		taskMode = TaskModeAsync
	}
	if taskType == TaskTypeTalk && taskMode != TaskModeSync {
		if sent, err := c.trySendTextFrame(text); err != nil {
			return err
		} else if sent {
			return nil
		}
	}
	body := map[string]string{
		"session_id": id,
		"text":       text,
		"task_type":  string(taskType),
		"task_mode":  string(taskMode),
	}
	return c.post(ctx, "/v1/streaming.task", body, nil)
}

// trySendTextFrame attempts the side-channel fast path. It reports false
// when no side-channel is open so the caller falls back to HTTP.
func (c *Client) trySendTextFrame(text string) (bool, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return false, nil
	}
	codec, err := c.frameCodec()
	if err != nil {
		return false, nil
	}
	encoded, err := codec.Encode(frame.Frame{Text: &frame.TextFrame{Text: text}})
	if err != nil {
		return false, fmt.Errorf("encode text frame: %w", err)
	}
	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.BinaryMessage, encoded)
	c.writeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("send text frame: %w", err)
	}
	return true, nil
}

// frameCodec compiles the wire schema once and reuses it for the life of
// the client.
func (c *Client) frameCodec() (*frame.Codec, error) {
	c.codecOnce.Do(func() {
		c.codec, c.codecErr = frame.NewCodec()
	})
	return c.codec, c.codecErr
}

// StopSession tears the session down: local resources first, then the
// remote stop call. A failing remote stop never orphans local resources.
func (c *Client) StopSession(ctx context.Context) error {
	c.CloseVoiceChat()
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	err := c.post(ctx, "/v1/streaming.stop", map[string]string{"session_id": id}, nil)
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
	return err
}
