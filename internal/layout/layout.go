// Package layout holds the channel-layout topology: the nine supported loudspeaker layouts,
// their playout orders, and the rules that decide which channels every layer of a scalable chain carries.
package layout

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownLayout = errors.New("unknown channel layout")
	ErrInvalidChain  = errors.New("invalid layout chain")
)

// Layout is one of the fixed IAMF loudspeaker layouts.
type Layout uint8

const (
	Mono   Layout = iota // 1.0.0
	Stereo               // 2.0.0
	L510                 // 5.1.0
	L512                 // 5.1.2
	L514                 // 5.1.4
	L710                 // 7.1.0
	L712                 // 7.1.2
	L714                 // 7.1.4
	L312                 // 3.1.2

	NumLayouts
)

// MaxChannels is the channel count of the largest layout.
const MaxChannels = 12

type topology struct {
	name     string
	surround int
	height   int
	lfe      int
	order    []ChannelID
	gainDown []ChannelID
}

//nolint:gochecknoglobals // topology tables, effectively const
var topologies = [NumLayouts]topology{
	Mono: {
		name: "1.0.0", surround: 1,
		order:    []ChannelID{M},
		gainDown: []ChannelID{M},
	},
	Stereo: {
		name: "2.0.0", surround: 2,
		order:    []ChannelID{L2, R2},
		gainDown: []ChannelID{L2, R2},
	},
	L510: {
		name: "5.1.0", surround: 5, lfe: 1,
		order:    []ChannelID{L5, R5, C, LFE, SL5, SR5},
		gainDown: []ChannelID{SL5, SR5},
	},
	L512: {
		name: "5.1.2", surround: 5, height: 2, lfe: 1,
		order:    []ChannelID{L5, R5, C, LFE, SL5, SR5, HL, HR},
		gainDown: []ChannelID{SL5, SR5, HL, HR},
	},
	L514: {
		name: "5.1.4", surround: 5, height: 4, lfe: 1,
		order:    []ChannelID{L5, R5, C, LFE, SL5, SR5, HFL, HFR, HBL, HBR},
		gainDown: []ChannelID{SL5, SR5},
	},
	L710: {
		name: "7.1.0", surround: 7, lfe: 1,
		order: []ChannelID{L5, R5, C, LFE, SL7, SR7, BL7, BR7},
	},
	L712: {
		name: "7.1.2", surround: 7, height: 2, lfe: 1,
		order:    []ChannelID{L5, R5, C, LFE, SL7, SR7, BL7, BR7, HL, HR},
		gainDown: []ChannelID{HL, HR},
	},
	L714: {
		name: "7.1.4", surround: 7, height: 4, lfe: 1,
		order: []ChannelID{L5, R5, C, LFE, SL7, SR7, BL7, BR7, HFL, HFR, HBL, HBR},
	},
	L312: {
		name: "3.1.2", surround: 3, height: 2, lfe: 1,
		order:    []ChannelID{L3, R3, C, LFE, TL, TR},
		gainDown: []ChannelID{L3, R3, TL, TR},
	},
}

// All returns every supported layout.
func All() []Layout {
	return []Layout{Mono, Stereo, L510, L512, L514, L710, L712, L714, L312}
}

// Parse accepts the dotted layout notation ("5.1.2"), plus "mono" and "stereo".
func Parse(name string) (Layout, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "mono":
		return Mono, nil
	case "stereo":
		return Stereo, nil
	}

	for l := range NumLayouts {
		if topologies[l].name == name {
			return l, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
}

// ParseList parses a comma-separated list of layouts.
func ParseList(list string) ([]Layout, error) {
	var layouts []Layout

	for item := range strings.SplitSeq(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}

		l, err := Parse(item)
		if err != nil {
			return nil, err
		}

		layouts = append(layouts, l)
	}

	return layouts, nil
}

func (l Layout) Valid() bool {
	return l < NumLayouts
}

func (l Layout) String() string {
	if !l.Valid() {
		return fmt.Sprintf("layout(%d)", uint8(l))
	}

	return topologies[l].name
}

// Surround is the number of surround (ear-level) channels, excluding LFE.
func (l Layout) Surround() int { return topologies[l].surround }

// Height is the number of elevated channels.
func (l Layout) Height() int { return topologies[l].height }

// LFE is 1 when the layout carries a low-frequency channel.
func (l Layout) LFE() int { return topologies[l].lfe }

// Count is the total number of channels.
func (l Layout) Count() int { return len(topologies[l].order) }

// Channels returns the playout order of the layout.
func (l Layout) Channels() []ChannelID {
	return slices.Clone(topologies[l].order)
}

// Index returns the playout position of ch, or -1.
func (l Layout) Index(ch ChannelID) int {
	return slices.Index(topologies[l].order, ch)
}

func (l Layout) Has(ch ChannelID) bool {
	return l.Index(ch) >= 0
}

// GainDown lists the channels of the layout that may carry a downmix makeup gain.
func (l Layout) GainDown() []ChannelID {
	return slices.Clone(topologies[l].gainDown)
}

// Contains reports whether every dimension of o fits within l, which is the condition for l to be mixed down to o.
func (l Layout) Contains(o Layout) bool {
	return o.Surround() <= l.Surround() && o.Height() <= l.Height() && o.LFE() <= l.LFE()
}

// scalableOrder is the order a base layer transmits its channels in: surround pairs, heights, then center and LFE.
func (l Layout) scalableOrder() []ChannelID {
	order := topologies[l].order
	out := make([]ChannelID, 0, len(order))

	for _, ch := range order {
		if ch != C && ch != LFE {
			out = append(out, ch)
		}
	}

	for _, ch := range []ChannelID{C, LFE} {
		if l.Has(ch) {
			out = append(out, ch)
		}
	}

	return out
}

// added returns the channels a layer must transmit to extend from to to.
func added(from, to Layout) []ChannelID {
	var out []ChannelID

	s0, s1 := from.Surround(), to.Surround()
	h0, h1 := from.Height(), to.Height()

	// Surround pairs.
	for j := s0 + 1; j <= s1; j++ {
		switch j {
		case 5:
			out = append(out, L5, R5)
		case 7:
			out = append(out, SL7, SR7)
		}
	}

	// Heights.
	if h1 > h0 {
		switch {
		case h0 == 2:
			out = append(out, HFL, HFR)
		case s1 == 3:
			out = append(out, TL, TR)
		case h1 == 2:
			out = append(out, HL, HR)
		default:
			out = append(out, HFL, HFR, HBL, HBR)
		}
	}

	if s0 < 3 && s1 >= 3 {
		out = append(out, C)
	}

	if to.LFE() > from.LFE() {
		out = append(out, LFE)
	}

	if s0 < 2 && s1 >= 2 {
		out = append(out, L2)
	}

	return out
}
