package room

import (
	"fmt"
	"sync"

	"github.com/hraban/opus"
)

// Opus tracks from the avatar are 48 kHz mono.
const (
	trackSampleRate  = 48000
	trackChannels    = 1
	maxOpusFrameSize = 5760 // 120ms at 48kHz
)

// MediaStream accumulates the remote track set and decodes inbound audio.
// Readiness is edge-triggered: it reports true exactly once, the first
// time both a video and an audio track are present. Removing and re-adding
// tracks afterwards never re-triggers it.
type MediaStream struct {
	mu         sync.Mutex
	tracks     map[string]Track
	readyFired bool

	decoder *opus.Decoder
	pcm     []int16
}

func NewMediaStream() *MediaStream {
	return &MediaStream{tracks: make(map[string]Track)}
}

// AddTrack records a subscribed track and reports whether the stream just
// became ready.
func (m *MediaStream) AddTrack(t Track) (becameReady bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[t.ID] = t
	if m.readyFired {
		return false
	}
	if m.hasKindLocked(TrackKindAudio) && m.hasKindLocked(TrackKindVideo) {
		m.readyFired = true
		return true
	}
	return false
}

// RemoveTrack drops an unsubscribed track. Readiness state is unaffected.
func (m *MediaStream) RemoveTrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, id)
}

// Tracks returns a snapshot of the current track set.
func (m *MediaStream) Tracks() []Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	return out
}

// Ready reports whether readiness has fired.
func (m *MediaStream) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyFired
}

func (m *MediaStream) hasKindLocked(k TrackKind) bool {
	for _, t := range m.tracks {
		if t.Kind == k {
			return true
		}
	}
	return false
}

// DecodeAudio decodes one Opus packet from the avatar's audio track into
// 16-bit PCM. The decoder is created lazily on the first packet and kept
// for the life of the stream.
func (m *MediaStream) DecodeAudio(packet []byte) ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decoder == nil {
		dec, err := opus.NewDecoder(trackSampleRate, trackChannels)
		if err != nil {
			return nil, fmt.Errorf("create opus decoder: %w", err)
		}
		m.decoder = dec
		m.pcm = make([]int16, maxOpusFrameSize*trackChannels)
	}
	n, err := m.decoder.Decode(packet, m.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus packet: %w", err)
	}
	out := make([]int16, n*trackChannels)
	copy(out, m.pcm[:n*trackChannels])
	return out, nil
}
