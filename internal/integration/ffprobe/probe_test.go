package ffprobe_test

import (
	"errors"
	"testing"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/sporangium/internal/integration/ffprobe"
)

const sample = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video"},
    {"index": 1, "codec_name": "eac3", "codec_type": "audio", "sample_rate": "48000", "channels": 6,
     "channel_layout": "5.1(side)", "initial_padding": 256},
    {"index": 2, "codec_name": "flac", "codec_type": "audio", "sample_rate": "bogus", "channels": 12,
     "channel_layout": "7.1.4"}
  ],
  "format": {"filename": "movie.mkv", "nb_streams": 3, "format_name": "matroska,webm", "probe_score": 100}
}`

func TestParse(t *testing.T) {
	t.Parallel()

	result, err := ffprobe.Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if result.Format.FormatName != "matroska,webm" || len(result.Streams) != 3 {
		t.Fatalf("unexpected result %+v", result)
	}

	stream, err := result.AudioStream(0)
	if err != nil {
		t.Fatal(err)
	}

	if stream.Index != 1 || stream.InitialPadding != 256 || stream.ChannelLayout != "5.1(side)" {
		t.Fatalf("first audio stream %+v", stream)
	}

	rate, err := stream.Rate()
	if err != nil || rate != 48000 {
		t.Fatalf("rate %d, %v", rate, err)
	}

	stream, err = result.AudioStream(1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = stream.Rate(); !errors.Is(err, ffprobe.ErrStreamFormat) {
		t.Fatalf("expected ErrStreamFormat, got %v", err)
	}

	if _, err = result.AudioStream(2); !errors.Is(err, ffprobe.ErrNoAudioStream) {
		t.Fatalf("expected ErrNoAudioStream, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ffprobe.Parse([]byte("not json")); !errors.Is(err, fault.ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}
