package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medstra/streaming-avatar/internal/audio"
	"github.com/medstra/streaming-avatar/internal/frame"
	"github.com/medstra/streaming-avatar/internal/logging"
)

// StartVoiceChat opens the realtime side-channel and begins streaming
// microphone audio to the avatar. useSilencePrompt makes the avatar nudge
// a quiet user. Idempotent while a voice chat is already running.
func (c *Client) StartVoiceChat(ctx context.Context, useSilencePrompt bool) error {
	id := c.SessionID()
	if id == "" {
		return ErrNoActiveSession
	}
	c.mu.Lock()
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	capture := c.capture
	language := c.language
	c.mu.Unlock()

	codec, err := c.frameCodec()
	if err != nil {
		return fmt.Errorf("load frame codec: %w", err)
	}

	wsURL, err := c.sideChannelURL(id, useSilencePrompt, language)
	if err != nil {
		return err
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect side-channel: %w", err)
	}

	pipeline := audio.NewPipeline(capture, codec, c.sendAudioFrame)
	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = conn
	c.pipeline = pipeline
	c.wsCancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readSideChannel(conn, codec)
	}()

	if err := pipeline.Start(loopCtx); err != nil {
		c.CloseVoiceChat()
		return fmt.Errorf("start audio pipeline: %w", err)
	}
	logging.Infow("voice chat started", append(logging.SessionFields(id), "silence_prompt", useSilencePrompt)...)
	return nil
}

func (c *Client) sideChannelURL(sessionID string, useSilencePrompt bool, language string) (string, error) {
	base, err := url.Parse(c.basePath)
	if err != nil {
		return "", fmt.Errorf("parse base path: %w", err)
	}
	scheme := "wss"
	if base.Scheme == "http" {
		scheme = "ws"
	}
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("session_token", c.token)
	q.Set("silence_response", strconv.FormatBool(useSilencePrompt))
	if language != "" {
		q.Set("stt_language", language)
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     base.Host,
		Path:     "/v1/ws/streaming.chat",
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

// sendAudioFrame is the pipeline's outlet. It reports false when no
// side-channel is open so the pipeline counts the frame as dropped.
func (c *Client) sendAudioFrame(encoded []byte) bool {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return false
	}
	c.writeMu.Lock()
	err := ws.WriteMessage(websocket.BinaryMessage, encoded)
	c.writeMu.Unlock()
	if err != nil {
		logging.Debugw("audio frame send failed", "err", err)
		return false
	}
	return true
}

// readSideChannel consumes the socket until it closes. Text messages are
// JSON control events for the bridge; binary messages are wire frames.
// Malformed input of either kind is dropped and the channel stays open.
func (c *Client) readSideChannel(conn *websocket.Conn, codec *frame.Codec) {
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			logging.Debugw("side-channel closed", "err", err)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			c.bridge.EmitSideChannel(raw)
		case websocket.BinaryMessage:
			f, err := codec.Decode(raw)
			if err != nil {
				var decodeErr *frame.DecodeError
				if errors.As(err, &decodeErr) {
					logging.Debugw("dropping malformed side-channel frame", "reason", decodeErr.Reason, "bytes", len(raw))
					continue
				}
				logging.Warnw("side-channel frame decode failed", "err", err)
				continue
			}
			if f.Transcription != nil {
				logging.Debugw("transcription frame received", "text", f.Transcription.Text, "user_id", f.Transcription.UserID)
			}
		}
	}
}

// CloseVoiceChat stops the audio pipeline and closes the side-channel.
// Idempotent and safe without a running voice chat.
func (c *Client) CloseVoiceChat() {
	c.mu.Lock()
	pipeline := c.pipeline
	ws := c.ws
	cancel := c.wsCancel
	c.pipeline = nil
	c.ws = nil
	c.wsCancel = nil
	c.mu.Unlock()

	if pipeline == nil && ws == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	if pipeline != nil {
		pipeline.Stop()
	}
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "voice chat over"),
			time.Now().Add(time.Second))
		ws.Close()
	}
	c.wg.Wait()
	logging.Infow("voice chat closed")
}
