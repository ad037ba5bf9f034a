package sporangium

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/farcloser/sporangium/internal/codec"
	"github.com/farcloser/sporangium/internal/types"
)

var errEncode = errors.New("encode failed")

// failOnce rejects the first frame it is given.
type failOnce struct {
	codec.Codec
	failed bool
}

func (f *failOnce) EncodeFrame(planes [][]float64) ([]byte, error) {
	if !f.failed {
		f.failed = true

		return nil, errEncode
	}

	return f.Codec.EncodeFrame(planes)
}

func TestEncodeFrameRetryAfterCodecError(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Chain = []string{"3.1.2", "5.1.2"}
	opts.FrameSize = 32
	opts.DisableReconGain = true

	newEnc := func() *Encoder {
		enc, err := NewEncoder(opts)
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() { _ = enc.Close() })

		return enc
	}

	input := make([][]float64, 8)
	for ch := range input {
		input[ch] = slices.Repeat([]float64{0.1}, 32)
	}

	params := types.DemixingParameters{Type: 1, WeightIndex: 1}

	enc := newEnc()
	enc.codecs[1] = &failOnce{Codec: enc.codecs[1]}

	if _, err := enc.EncodeFrame(input, params); !errors.Is(err, errEncode) {
		t.Fatalf("expected errEncode, got %v", err)
	}

	if enc.header.Params == params || enc.measured {
		t.Fatal("failed frame committed encoder state")
	}

	reference := newEnc()

	for frame := range 3 {
		want, err := reference.EncodeFrame(input, params)
		if err != nil {
			t.Fatal(err)
		}

		got, err := enc.EncodeFrame(input, params)
		if err != nil {
			t.Fatal(err)
		}

		for i := range want.Payloads {
			if !bytes.Equal(got.Payloads[i], want.Payloads[i]) {
				t.Fatalf("frame %d layer %d differs after a retried frame", frame, i)
			}
		}
	}
}
