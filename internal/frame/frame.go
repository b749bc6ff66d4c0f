// Package frame implements the compact binary wire schema used on the
// low-latency streaming side-channel. A Frame is a tagged union carrying
// exactly one of a text, raw-audio, or transcription payload, serialized
// in the pipecat proto3 envelope the remote service expects.
package frame

import (
	"errors"
	"fmt"
)

// TextFrame carries an utterance for the avatar to process.
type TextFrame struct {
	ID   uint64
	Name string
	Text string
}

// AudioRawFrame carries raw PCM audio. Audio holds signed 16-bit samples
// packed little-endian; SampleRate is in Hz.
type AudioRawFrame struct {
	ID          uint64
	Name        string
	Audio       []byte
	SampleRate  uint32
	NumChannels uint32
}

// TranscriptionFrame carries a speech-to-text result for one user.
type TranscriptionFrame struct {
	ID        uint64
	Name      string
	Text      string
	UserID    string
	Timestamp string
}

// Frame is a tagged union. Exactly one field must be non-nil when passed
// to Codec.Encode; Codec.Decode populates exactly one field.
type Frame struct {
	Text          *TextFrame
	Audio         *AudioRawFrame
	Transcription *TranscriptionFrame
}

// variantCount reports how many union fields are populated.
func (f Frame) variantCount() int {
	n := 0
	if f.Text != nil {
		n++
	}
	if f.Audio != nil {
		n++
	}
	if f.Transcription != nil {
		n++
	}
	return n
}

var (
	// ErrCodecNotReady is returned when Encode or Decode is called before
	// the codec schema has been compiled.
	ErrCodecNotReady = errors.New("frame codec schema not loaded")

	// ErrNoVariant is returned by Encode for a Frame with no populated field.
	ErrNoVariant = errors.New("frame has no populated variant")

	// ErrMultipleVariants is returned by Encode for a Frame with more than
	// one populated field. This is a caller bug, surfaced immediately.
	ErrMultipleVariants = errors.New("frame has multiple populated variants")
)

// DecodeError reports malformed bytes on the side-channel: truncated
// buffers, invalid wire data, or a missing union discriminant. The caller
// drops the offending frame; the channel stays usable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame decode: %s: %v", e.Reason, e.Err)
	}
	return "frame decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }
