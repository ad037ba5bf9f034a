// Package codec defines the core codec boundary of a scalable session and its LPCM reference implementation.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/farcloser/sporangium/internal/types"
)

var (
	ErrUnknownCodec   = errors.New("unknown codec")
	ErrNotInitialized = errors.New("codec not initialized")
	ErrConfig         = errors.New("invalid codec configuration")
	ErrFrame          = errors.New("frame does not match codec configuration")
)

// Codec codes one channel group (a chain layer) frame by frame.
// A codec with a non-zero PreSkip delays its output: the first PreSkip samples of a decoded frame are the tail of
// the previous input frame.
type Codec interface {
	Init(sampleRate, channels, frameSize int) error
	EncodeFrame(planes [][]float64) ([]byte, error)
	DecodeFrame(data []byte, planes [][]float64) error
	PreSkip() int
	Close() error
}

// Names lists the codecs New accepts.
func Names() []string {
	return []string{"lpcm16", "lpcm24", "lpcm32"}
}

// New returns an uninitialized codec. delay is the pre-skip the codec introduces, in samples.
func New(name string, delay int) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lpcm16":
		return NewLPCM(types.Depth16, delay), nil
	case "lpcm24", "lpcm":
		return NewLPCM(types.Depth24, delay), nil
	case "lpcm32":
		return NewLPCM(types.Depth32, delay), nil
	}

	return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownCodec, name, strings.Join(Names(), ", "))
}
