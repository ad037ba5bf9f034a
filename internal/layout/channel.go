package layout

import "fmt"

// ChannelID identifies a logical channel of the scalable channel model.
// The front pair of 7.1.x layouts carries the same signal as the 5.1.x front pair and shares L5/R5.
type ChannelID uint8

const (
	M ChannelID = iota
	L2
	R2
	C
	LFE
	TL
	TR
	L3
	R3
	L5
	R5
	SL5
	SR5
	HL
	HR
	SL7
	SR7
	HFL
	HFR
	BL7
	BR7
	HBL
	HBR

	// NumChannels is the number of distinct logical channels.
	NumChannels
)

//nolint:gochecknoglobals // naming table, effectively const
var channelNames = [NumChannels]string{
	M:   "mono",
	L2:  "l2",
	R2:  "r2",
	C:   "c",
	LFE: "lfe",
	TL:  "tl",
	TR:  "tr",
	L3:  "l3",
	R3:  "r3",
	L5:  "l5",
	R5:  "r5",
	SL5: "sl5",
	SR5: "sr5",
	HL:  "hl",
	HR:  "hr",
	SL7: "sl7",
	SR7: "sr7",
	HFL: "hfl",
	HFR: "hfr",
	BL7: "bl7",
	BR7: "br7",
	HBL: "hbl",
	HBR: "hbr",
}

func (c ChannelID) String() string {
	if c >= NumChannels {
		return fmt.Sprintf("channel(%d)", uint8(c))
	}

	return channelNames[c]
}

// LoudnessWeight returns the BS.1770 channel weight: surround and rear channels count +1.5 dB, LFE is excluded.
func (c ChannelID) LoudnessWeight() float64 {
	switch c {
	case SL5, SR5, SL7, SR7, BL7, BR7:
		return 1.41
	case LFE:
		return 0
	default:
		return 1
	}
}

// Parent returns the lower-layout channel a reconstructed channel is demixed from.
// Front heights (TL/TR) and transmitted-only channels have no parent.
func (c ChannelID) Parent() (ChannelID, bool) {
	switch c {
	case L2, R2:
		return M, true
	case L3:
		return L2, true
	case R3:
		return R2, true
	case SL5:
		return L3, true
	case SR5:
		return R3, true
	case BL7:
		return SL5, true
	case BR7:
		return SR5, true
	case HL:
		return TL, true
	case HR:
		return TR, true
	case HBL:
		return HL, true
	case HBR:
		return HR, true
	default:
		return c, false
	}
}
