package ffmpeg

import "time"

const (
	name = "ffmpeg"
	// Multichannel masters can be long; decoding them to PCM takes a while.
	timeout = 10 * time.Minute
)
