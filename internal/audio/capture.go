package audio

import "errors"

// Capture parameters are fixed by the remote service's ingestion format:
// 16 kHz mono, consumed in 512-sample chunks.
const (
	SampleRate   = 16000
	Channels     = 1
	ChunkSamples = 512
)

var (
	// ErrMicrophoneAccessDenied is returned when the platform refuses
	// audio capture permission. It must reach the caller so the UI can
	// degrade to text-only interaction.
	ErrMicrophoneAccessDenied = errors.New("microphone access denied")

	// ErrCaptureUnavailable is returned when no capture backend exists in
	// this build.
	ErrCaptureUnavailable = errors.New("audio capture unavailable")
)

// Constraints mirror the capture settings requested from the input device.
type Constraints struct {
	SampleRate       int
	Channels         int
	BufferSize       int
	AutoGainControl  bool
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConstraints returns the fixed settings used for voice chat.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       SampleRate,
		Channels:         Channels,
		BufferSize:       ChunkSamples,
		AutoGainControl:  true,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// CaptureSource abstracts a microphone producing 32-bit float PCM.
// Read fills buf with up to len(buf) samples and blocks until a full
// device buffer is available. Stop must be safe to call at any time,
// including before Start or twice.
type CaptureSource interface {
	Start(c Constraints) error
	Read(buf []float32) (int, error)
	Stop() error
}
