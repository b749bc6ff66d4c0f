package room

import (
	"sync"

	"github.com/medstra/streaming-avatar/internal/events"
	"github.com/medstra/streaming-avatar/internal/logging"
)

// AudioSink receives decoded PCM from the avatar's audio track.
type AudioSink func(pcm []int16)

// Binding consumes a Transport's event stream and surfaces it on the
// session event bridge: track membership drives STREAM_READY, data-channel
// payloads become typed session events, and audio packets are decoded to
// the optional sink.
type Binding struct {
	transport Transport
	bridge    *events.Bridge
	stream    *MediaStream
	sink      AudioSink

	wg           sync.WaitGroup
	disconnected sync.Once
}

func NewBinding(transport Transport, bridge *events.Bridge, sink AudioSink) *Binding {
	return &Binding{
		transport: transport,
		bridge:    bridge,
		stream:    NewMediaStream(),
		sink:      sink,
	}
}

// Stream exposes the track set, mainly for inspection and tests.
func (b *Binding) Stream() *MediaStream { return b.stream }

// Start launches the consumer goroutine. It returns immediately; the
// goroutine runs until the transport's event channel closes.
func (b *Binding) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range b.transport.Events() {
			b.handle(ev)
		}
		// Channel closed without a disconnected event; treat as a drop.
		b.emitDisconnected("transport stream ended")
	}()
}

func (b *Binding) handle(ev TransportEvent) {
	switch ev.Kind {
	case EventTrackSubscribed:
		if b.stream.AddTrack(ev.Track) {
			logging.Infow("media stream ready", "tracks", len(b.stream.Tracks()))
			b.bridge.Emit(StreamReadyEvent{})
		}
	case EventTrackUnsubscribed:
		b.stream.RemoveTrack(ev.Track.ID)
	case EventData:
		b.bridge.EmitRoomData(ev.Payload)
	case EventAudio:
		if b.sink == nil {
			return
		}
		pcm, err := b.stream.DecodeAudio(ev.Payload)
		if err != nil {
			logging.Debugw("dropping undecodable audio packet", "err", err, "bytes", len(ev.Payload))
			return
		}
		b.sink(pcm)
	case EventDisconnected:
		b.emitDisconnected(ev.Reason)
	default:
		logging.Debugw("ignoring unknown transport event", "kind", ev.Kind)
	}
}

func (b *Binding) emitDisconnected(reason string) {
	b.disconnected.Do(func() {
		logging.Infow("media stream disconnected", "reason", reason)
		b.bridge.Emit(StreamDisconnectedEvent{Reason: reason})
	})
}

// Close shuts the transport down and waits for the consumer to drain. The
// disconnected event is emitted exactly once whether the drop was local
// or remote.
func (b *Binding) Close() error {
	err := b.transport.Close()
	b.wg.Wait()
	return err
}
