//go:build !portaudio

package audio

// Microphone is unavailable without the portaudio build tag. Start always
// fails with ErrCaptureUnavailable so callers surface the condition
// instead of silently running without input.
type Microphone struct{}

func NewMicrophone() *Microphone { return &Microphone{} }

func (m *Microphone) Start(Constraints) error     { return ErrCaptureUnavailable }
func (m *Microphone) Read([]float32) (int, error) { return 0, ErrCaptureUnavailable }
func (m *Microphone) Stop() error                 { return nil }
