package ffmpeg

import (
	"strconv"

	"github.com/farcloser/sporangium/internal/layout"
	"github.com/farcloser/sporangium/internal/types"
)

func bitDepthToSpec(bitDepth types.BitDepth) string {
	// BitDepth 32 = s32le, 24 = s24le, 16 = s16le
	//nolint:gosec // we fine, gosec
	return "s" + strconv.Itoa(int(bitDepth)) + "le"
}

func bitDepthToCodec(bitDepth types.BitDepth) string {
	return "pcm_" + bitDepthToSpec(bitDepth)
}

// ChannelLayout is the ffmpeg channel layout name of l.
func ChannelLayout(l layout.Layout) string {
	switch l {
	case layout.Mono:
		return "mono"
	case layout.Stereo:
		return "stereo"
	case layout.L510:
		return "5.1"
	case layout.L710:
		return "7.1"
	case layout.L312, layout.L512, layout.L514, layout.L712, layout.L714:
		return l.String()
	}

	return ""
}

// Order maps every playout position of l to the channel index ffmpeg uses for it.
// ffmpeg puts the 7.1 back pair before the side pair.
func Order(l layout.Layout) []int {
	order := make([]int, l.Count())
	for i := range order {
		order[i] = i
	}

	if l.Surround() == 7 {
		order[4], order[5], order[6], order[7] = 6, 7, 4, 5
	}

	return order
}

// ParseChannelLayout maps an ffmpeg/ffprobe channel layout name to a layout.
func ParseChannelLayout(name string) (layout.Layout, bool) {
	switch name {
	case "mono":
		return layout.Mono, true
	case "stereo":
		return layout.Stereo, true
	case "5.1", "5.1(side)":
		return layout.L510, true
	case "7.1":
		return layout.L710, true
	}

	l, err := layout.Parse(name)

	return l, err == nil
}
