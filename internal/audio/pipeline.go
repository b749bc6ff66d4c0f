package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/medstra/streaming-avatar/internal/frame"
	"github.com/medstra/streaming-avatar/internal/logging"
)

// SendFunc transmits one encoded frame on the side-channel. It reports
// false when no side-channel is open, in which case the frame is dropped:
// realtime audio has no value once stale, so nothing is queued.
type SendFunc func(encoded []byte) bool

// Pipeline turns live microphone input into a steady stream of encoded
// AudioRawFrames. One pipeline owns one capture source; sessions must not
// share pipelines.
type Pipeline struct {
	src   CaptureSource
	codec *frame.Codec
	send  SendFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewPipeline(src CaptureSource, codec *frame.Codec, send SendFunc) *Pipeline {
	return &Pipeline{src: src, codec: codec, send: send}
}

// Start requests microphone access with the default constraints and begins
// the capture loop. A permission failure is surfaced, never swallowed.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if err := p.src.Start(DefaultConstraints()); err != nil {
		if errors.Is(err, ErrMicrophoneAccessDenied) || errors.Is(err, ErrCaptureUnavailable) {
			return err
		}
		return fmt.Errorf("start capture: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(loopCtx)
	}()
	logging.Infow("audio pipeline started", "sample_rate", SampleRate, "channels", Channels, "chunk_samples", ChunkSamples)
	return nil
}

func (p *Pipeline) loop(ctx context.Context) {
	buf := make([]float32, ChunkSamples)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := p.src.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warnw("capture read failed; stopping pipeline", "err", err)
			return
		}
		if n == 0 {
			continue
		}
		pcm := PCM16Bytes(ConvertFloat32ToS16PCM(buf[:n]))
		encoded, err := p.codec.Encode(frame.Frame{Audio: &frame.AudioRawFrame{
			Audio:       pcm,
			SampleRate:  SampleRate,
			NumChannels: Channels,
		}})
		if err != nil {
			logging.Warnw("audio frame encode failed", "err", err)
			continue
		}
		if p.send(encoded) {
			p.sent.Add(1)
		} else {
			p.dropped.Add(1)
		}
	}
}

// Stop disconnects the capture loop and releases the device. It is
// idempotent and safe to call even if Start was never called.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := p.src.Stop(); err != nil {
		logging.Debugw("capture source stop", "err", err)
	}
	p.wg.Wait()
	logging.Infow("audio pipeline stopped", "frames_sent", p.sent.Load(), "frames_dropped", p.dropped.Load())
}

// Stats reports how many frames were transmitted and how many were
// dropped because no side-channel was open.
func (p *Pipeline) Stats() (sent, dropped int64) {
	return p.sent.Load(), p.dropped.Load()
}
