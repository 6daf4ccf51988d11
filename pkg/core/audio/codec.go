package audio

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

// EncodeBytes returns the standard base64 encoding of b.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes standard base64. Malformed input yields a decode_error
// and no data.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, core.NewDecodeError("malformed base64 payload", err)
	}
	return b, nil
}

// FloatToPCM16 converts normalized float samples to 16-bit PCM.
//
// Input is clamped to [-1, 1]. Negative values scale by 0x8000 and
// non-negative values by 0x7FFF, so -1 maps to -32768 and 1 to 32767.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7FFF)
		}
	}
	return out
}

// PCM16ToFloat converts 16-bit PCM to floats by dividing by 32768.
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16FromBytes decodes little-endian 16-bit samples. An odd byte count is a
// decode_error.
func PCM16FromBytes(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, core.NewDecodeError("pcm16 payload has odd length", nil)
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out, nil
}

// PCM16Bytes encodes samples as little-endian bytes.
func PCM16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeFloat decodes a raw PCM16 payload straight to normalized floats.
func DecodeFloat(b []byte) ([]float32, error) {
	pcm, err := PCM16FromBytes(b)
	if err != nil {
		return nil, err
	}
	return PCM16ToFloat(pcm), nil
}
