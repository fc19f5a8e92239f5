// Package pio implements the symbol transmitter on the RP2040 PIO blocks.
package pio

import "pulsegen/core"

// segmentOverhead is the cycles spent per segment outside the hold loop
// (pull, two outs, and the final jmp that falls through)
const segmentOverhead = 4

// Encoder converts symbols into segment words. It implements core.TxEncoder.
// Each word is one output segment:
//
//	Bit 0:     output level
//	Bits 1-31: hold cycles minus segmentOverhead
//
// With the clock divided down to 1 MHz a cycle is one tick, so a segment of
// d ticks holds the level for exactly d microseconds once d >= segmentOverhead.
// Shorter segments stretch to segmentOverhead ticks.
type Encoder struct{}

// Encode implements core.TxEncoder. Zero-length segments are dropped.
func (Encoder) Encode(dst []uint32, src []core.Symbol) []uint32 {
	var segs [2]core.Segment
	for _, s := range src {
		for _, seg := range s.Segments(segs[:0]) {
			if seg.Duration == 0 {
				continue
			}
			dst = append(dst, segmentWord(seg))
		}
	}
	return dst
}

// Close implements core.TxEncoder
func (Encoder) Close() error {
	return nil
}

func segmentWord(seg core.Segment) uint32 {
	hold := uint32(0)
	if seg.Duration > segmentOverhead {
		hold = uint32(seg.Duration) - segmentOverhead
	}
	word := hold << 1
	if seg.Level {
		word |= 1
	}
	return word
}
