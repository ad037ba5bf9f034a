package downmix

import "github.com/farcloser/sporangium/internal/layout"

// Weight is the height weight w used by the last frame.
func (d *Downmixer) Weight() float64 { return d.w }

// Channel returns one channel of the last frame.
func (d *Downmixer) Channel(ch layout.ChannelID) []float64 {
	return d.channel(ch)
}
