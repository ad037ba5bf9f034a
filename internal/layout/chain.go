package layout

import (
	"fmt"
	"slices"
)

// Chain is a validated scalable chain: layouts ordered from the base layer up, each one extending the previous.
type Chain struct {
	layouts     []Layout
	transmitted [][]ChannelID
	derived     [][]ChannelID
}

// NewChain validates the ordered layouts and precomputes the per-layer channel sets.
// Surround, height and LFE counts must never decrease along the chain and every layer must add channels.
func NewChain(layouts ...Layout) (Chain, error) {
	if len(layouts) == 0 {
		return Chain{}, fmt.Errorf("%w: empty", ErrInvalidChain)
	}

	for i, l := range layouts {
		if !l.Valid() {
			return Chain{}, fmt.Errorf("%w: %w: position %d", ErrInvalidChain, ErrUnknownLayout, i)
		}

		if i == 0 {
			continue
		}

		prev := layouts[i-1]
		if !l.Contains(prev) || l.Count() <= prev.Count() {
			return Chain{}, fmt.Errorf("%w: %s cannot extend %s", ErrInvalidChain, l, prev)
		}
	}

	chain := Chain{
		layouts:     slices.Clone(layouts),
		transmitted: make([][]ChannelID, len(layouts)),
		derived:     make([][]ChannelID, len(layouts)),
	}

	var carried []ChannelID

	for i, l := range layouts {
		if i == 0 {
			chain.transmitted[i] = l.scalableOrder()
		} else {
			chain.transmitted[i] = added(layouts[i-1], l)
		}

		carried = append(carried, chain.transmitted[i]...)

		for _, ch := range l.Channels() {
			if !slices.Contains(carried, ch) {
				chain.derived[i] = append(chain.derived[i], ch)
			}
		}

		if len(carried) != l.Count() {
			return Chain{}, fmt.Errorf("%w: %s carries %d channels, expected %d", ErrInvalidChain, l, len(carried), l.Count())
		}
	}

	return chain, nil
}

// ParseChain parses and validates a comma-separated chain such as "2.0.0,5.1.2,7.1.4".
func ParseChain(list string) (Chain, error) {
	layouts, err := ParseList(list)
	if err != nil {
		return Chain{}, err
	}

	return NewChain(layouts...)
}

func (c Chain) Len() int { return len(c.layouts) }

func (c Chain) Layout(i int) Layout { return c.layouts[i] }

func (c Chain) Layouts() []Layout { return slices.Clone(c.layouts) }

// Top is the highest layout of the chain: the layout of the input signal.
func (c Chain) Top() Layout { return c.layouts[len(c.layouts)-1] }

// Index returns the layer carrying l, or -1.
func (c Chain) Index(l Layout) int { return slices.Index(c.layouts, l) }

// Transmitted lists the channels coded in layer i, in scalable order.
func (c Chain) Transmitted(i int) []ChannelID { return c.transmitted[i] }

// Derived lists the channels of layer i's layout that a decoder has to reconstruct, in playout order.
// Those are the channels recon gain applies to.
func (c Chain) Derived(i int) []ChannelID { return c.derived[i] }

// Offset is the position of layer i's first channel in the concatenation of all transmitted channels.
func (c Chain) Offset(i int) int {
	var n int
	for j := range i {
		n += len(c.transmitted[j])
	}

	return n
}

func (c Chain) String() string {
	out := ""

	for i, l := range c.layouts {
		if i > 0 {
			out += ">"
		}

		out += l.String()
	}

	return out
}
