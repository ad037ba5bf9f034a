//nolint:tagliatelle
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sporangium/internal/integration/binary"
)

var (
	ErrNoAudioStream = errors.New("audio stream not found")
	ErrStreamFormat  = errors.New("invalid stream format")
)

// Result contains the marshalled output of ffprobe.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream holds the properties of one stream that matter for channel-based audio.
type Stream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`                // flac, pcm_s24le, eac3
	CodecLongName string `json:"codec_long_name"`           // FLAC (Free Lossless Audio Codec)
	CodecType     string `json:"codec_type"`                // audio
	SampleRate    string `json:"sample_rate,omitempty"`     // 48000
	SampleFmt     string `json:"sample_fmt,omitempty"`      // s32, fltp
	Channels      int    `json:"channels,omitempty"`        // 12
	ChannelLayout string `json:"channel_layout,omitempty"`  // 7.1.4, 5.1(side), stereo
	BitsPerSample int    `json:"bits_per_sample,omitempty"` // reported by PCM containers
	Duration      string `json:"duration,omitempty"`        // 310.666667
	// Encoder delay, added at stream start by lossy codecs. Decoders skip it.
	InitialPadding int `json:"initial_padding,omitempty"`
}

// Format represents container-level information.
type Format struct {
	Filename   string `json:"filename"`
	NbStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"`        // Short container name(s), e.g. "wav", "mov,mp4,m4a,3gp,3g2,mj2"
	Duration   string `json:"duration,omitempty"` // Total duration in seconds as float string
	ProbeScore int    `json:"probe_score"`
}

// AudioStream returns the index-th audio stream (0-based among audio streams only).
func (r *Result) AudioStream(index int) (*Stream, error) {
	audioCount := 0

	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			if audioCount == index {
				return &r.Streams[i], nil
			}

			audioCount++
		}
	}

	return nil, fmt.Errorf("%w: index %d (file has %d audio streams)", ErrNoAudioStream, index, audioCount)
}

// Rate parses the stream sample rate.
func (s *Stream) Rate() (int, error) {
	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %q", ErrStreamFormat, s.SampleRate)
	}

	return rate, nil
}

// Probe runs ffprobe on the given file path and returns parsed metadata.
// It requires ffprobe to be available in the system PATH.
func Probe(ctx context.Context, filePath string) (*Result, error) {
	slog.Debug("ffprobe.Probe", "file path", filePath)

	ffprobePath, found := binary.Available(name)
	if !found {
		return nil, fmt.Errorf("%w: %s", fault.ErrMissingRequirements, name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is intentionally user-provided input for probing media files
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		return nil, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	return &result, nil
}
