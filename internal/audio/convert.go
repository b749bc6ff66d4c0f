package audio

import (
	"encoding/binary"
	"math"
)

// ConvertFloat32ToS16PCM converts float samples in [-1, 1] to signed
// 16-bit PCM. Samples are clamped first; negative values scale by 32768
// and positive by 32767 so neither rail can overflow. The asymmetry is
// part of the wire contract and must not be "fixed".
func ConvertFloat32ToS16PCM(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		if v < 0 {
			out[i] = int16(math.Round(v * 32768))
		} else {
			out[i] = int16(math.Round(v * 32767))
		}
	}
	return out
}

// PCM16Bytes packs samples as little-endian bytes, the layout expected in
// an AudioRawFrame payload.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
