//go:build portaudio

package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Microphone captures PCM from the default input device via PortAudio.
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func NewMicrophone() *Microphone {
	return &Microphone{}
}

func (m *Microphone) Start(c Constraints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	m.buf = make([]float32, c.BufferSize)
	stream, err := portaudio.OpenDefaultStream(c.Channels, 0, float64(c.SampleRate), c.BufferSize, m.buf)
	if err != nil {
		portaudio.Terminate()
		if strings.Contains(strings.ToLower(err.Error()), "denied") {
			return fmt.Errorf("%w: %v", ErrMicrophoneAccessDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	m.stream = stream
	return nil
}

func (m *Microphone) Read(dst []float32) (int, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return 0, ErrCaptureUnavailable
	}
	if err := stream.Read(); err != nil {
		return 0, fmt.Errorf("portaudio read: %w", err)
	}
	n := copy(dst, m.buf)
	return n, nil
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Stop()
	m.stream.Close()
	m.stream = nil
	portaudio.Terminate()
	return err
}
