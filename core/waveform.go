package core

// Symbol encoding limits of the slow channel transmitter
const (
	// MaxSegmentTicks is the largest duration one symbol slot can hold (15-bit field)
	MaxSegmentTicks = 32767

	// MaxSymbols bounds the memory of one transmission buffer
	MaxSymbols = 2048

	// TickResolutionHz is the transmitter tick rate; one tick is one microsecond
	TickResolutionHz = 1000000
)

// Segment is one single-level run of 1..MaxSegmentTicks ticks
type Segment struct {
	Level    bool
	Duration uint16
}

// Symbol packs two segments, the transmitter's atomic transport unit.
// A zero Duration1 is the hardware stop marker and is only legal in the last
// symbol of a buffer.
type Symbol struct {
	Level0    bool
	Duration0 uint16
	Level1    bool
	Duration1 uint16
}

// Word returns the 32-bit layout used by the transmitter:
// bits 0-14 duration0, bit 15 level0, bits 16-30 duration1, bit 31 level1.
func (s Symbol) Word() uint32 {
	w := uint32(s.Duration0 & MaxSegmentTicks)
	if s.Level0 {
		w |= 1 << 15
	}
	w |= uint32(s.Duration1&MaxSegmentTicks) << 16
	if s.Level1 {
		w |= 1 << 31
	}
	return w
}

// SymbolFromWord is the inverse of Word
func SymbolFromWord(w uint32) Symbol {
	return Symbol{
		Duration0: uint16(w & MaxSegmentTicks),
		Level0:    w&(1<<15) != 0,
		Duration1: uint16((w >> 16) & MaxSegmentTicks),
		Level1:    w&(1<<31) != 0,
	}
}

// Segments appends the non-empty segments of s to dst
func (s Symbol) Segments(dst []Segment) []Segment {
	if s.Duration0 > 0 {
		dst = append(dst, Segment{Level: s.Level0, Duration: s.Duration0})
	}
	if s.Duration1 > 0 {
		dst = append(dst, Segment{Level: s.Level1, Duration: s.Duration1})
	}
	return dst
}

// chunkCount returns how many slots a run of d ticks occupies
func chunkCount(d uint64) uint64 {
	n := d / MaxSegmentTicks
	if d%MaxSegmentTicks != 0 {
		n++
	}
	return n
}

// RequiredSymbols returns the unclamped symbol count for a pulse pattern
func RequiredSymbols(pulsesPerRev int, pulseUs, pauseUs uint64) uint64 {
	if pulsesPerRev <= 0 {
		return 0
	}
	segments := uint64(pulsesPerRev) * (chunkCount(pulseUs) + chunkCount(pauseUs))
	return (segments + 1) / 2
}

// waveformBuilder fills symbols slot by slot
type waveformBuilder struct {
	symbols  []Symbol
	capacity int
	cur      Symbol
	half     bool

	segments   int // slots filled so far
	lastLowEnd int // slots filled at the end of the last complete pause run
}

// appendRun splits a run into bounded chunks. It reports false, without
// writing a partial chunk, when the symbol capacity runs out.
func (b *waveformBuilder) appendRun(level bool, d uint64) bool {
	for d > 0 {
		if len(b.symbols) >= b.capacity {
			return false
		}
		seg := d
		if seg > MaxSegmentTicks {
			seg = MaxSegmentTicks
		}
		d -= seg

		if !b.half {
			b.cur = Symbol{Level0: level, Duration0: uint16(seg)}
			b.half = true
		} else {
			b.cur.Level1 = level
			b.cur.Duration1 = uint16(seg)
			b.symbols = append(b.symbols, b.cur)
			b.half = false
		}
		b.segments++
	}
	return true
}

// finish commits a half-filled symbol; its empty second slot becomes the
// end-of-buffer marker.
func (b *waveformBuilder) finish() []Symbol {
	if b.half {
		b.symbols = append(b.symbols, b.cur)
		b.half = false
	}
	return b.symbols
}

// trimToLastPause cuts a truncated buffer back to the end of the last whole
// pulse/pause repetition so the looped output never stops on a high level.
// Without a complete repetition the raw prefix is kept.
func (b *waveformBuilder) trimToLastPause() {
	if b.lastLowEnd == 0 || b.lastLowEnd == b.segments {
		return
	}
	n := (b.lastLowEnd + 1) / 2
	b.symbols = b.symbols[:n]
	if b.lastLowEnd%2 == 1 {
		b.symbols[n-1].Level1 = false
		b.symbols[n-1].Duration1 = 0
	}
	b.segments = b.lastLowEnd
}

// BuildWaveform turns pulsesPerRev repetitions of a HIGH pulseUs run followed
// by a LOW pauseUs run into packed symbols. capacity is clamped to MaxSymbols.
// truncated reports that the pattern needed more symbols than allowed; the
// returned symbols are then a decodable prefix of the intended sequence.
func BuildWaveform(pulsesPerRev int, pulseUs, pauseUs uint64, capacity int) (symbols []Symbol, truncated bool) {
	if capacity <= 0 || capacity > MaxSymbols {
		capacity = MaxSymbols
	}
	required := RequiredSymbols(pulsesPerRev, pulseUs, pauseUs)
	alloc := capacity
	if required < uint64(capacity) {
		alloc = int(required)
	}

	b := &waveformBuilder{
		symbols:  make([]Symbol, 0, alloc),
		capacity: capacity,
	}
	for p := 0; p < pulsesPerRev; p++ {
		if !b.appendRun(true, pulseUs) || !b.appendRun(false, pauseUs) {
			truncated = true
			break
		}
		b.lastLowEnd = b.segments
	}

	b.finish()
	if truncated {
		b.trimToLastPause()
	}
	return b.symbols, truncated
}
