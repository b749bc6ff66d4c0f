// Package room binds a media-room transport to the session event bridge.
// It tracks remote track membership, decodes inbound avatar audio, and
// forwards data-channel messages as typed events.
package room

import (
	"context"

	"github.com/medstra/streaming-avatar/internal/events"
)

// TrackKind distinguishes the two remote media tracks an avatar publishes.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track identifies one remote media track.
type Track struct {
	ID   string    `json:"id"`
	Kind TrackKind `json:"kind"`
}

// TransportEventKind discriminates the transport event envelope.
type TransportEventKind string

const (
	EventTrackSubscribed   TransportEventKind = "track_subscribed"
	EventTrackUnsubscribed TransportEventKind = "track_unsubscribed"
	EventData              TransportEventKind = "data"
	EventAudio             TransportEventKind = "audio"
	EventDisconnected      TransportEventKind = "disconnected"
)

// TransportEvent is one occurrence on the media transport. Track is set
// for subscribe/unsubscribe, Payload for data and audio, Reason for
// disconnects.
type TransportEvent struct {
	Kind    TransportEventKind
	Track   Track
	Payload []byte
	Reason  string
}

// Transport is the media-room connection. PrepareConnection is a
// best-effort warmup whose failures are ignored; Connect must fail loudly.
// The Events channel is closed after the disconnected event is delivered.
type Transport interface {
	PrepareConnection(url, token string)
	Connect(ctx context.Context, url, token string) error
	Events() <-chan TransportEvent
	Close() error
}

// StreamReadyEvent fires once per session, the first time both a video and
// an audio track are subscribed.
type StreamReadyEvent struct{}

func (StreamReadyEvent) EventType() events.Type { return events.StreamReady }

// StreamDisconnectedEvent fires once when the transport drops, whether the
// disconnect was requested or not. There is no automatic reconnect; the
// caller decides between teardown and a fresh session.
type StreamDisconnectedEvent struct {
	Reason string
}

func (StreamDisconnectedEvent) EventType() events.Type { return events.StreamDisconnected }
