package protocol

import "errors"

var ErrBodyTooLarge = errors.New("protocol: frame body too large")

// EncodeFrame writes one frame to out
func EncodeFrame(out OutputBuffer, seq uint8, cmd byte, body []byte) error {
	if len(body) > BodyMax {
		return ErrBodyTooLarge
	}
	cursor := out.CurPosition()

	// Length is patched once the body is written
	out.Output([]byte{0, 0, seq, cmd})
	out.Output(body)

	length := len(out.DataSince(cursor)) + TrailerSize
	out.Update(cursor+PositionLenHi, uint8(length>>8))
	out.Update(cursor+PositionLenLo, uint8(length))

	crc := CRC16(out.DataSince(cursor))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
	return nil
}

// AppendFrame appends one encoded frame to dst
func AppendFrame(dst []byte, seq uint8, cmd byte, body []byte) ([]byte, error) {
	scratch := NewScratchOutput(FrameMin + len(body))
	if err := EncodeFrame(scratch, seq, cmd, body); err != nil {
		return dst, err
	}
	return append(dst, scratch.Result()...), nil
}

// Decoder splits a byte stream into frames. After a corrupt frame it drops
// input up to the next sync byte.
type Decoder struct {
	desynced bool

	// Dropped counts frames rejected for a bad length, sync byte or CRC
	Dropped int
}

// Feed decodes every complete frame in input, calling fn for each, and pops
// the consumed bytes. Partial frames stay in input for the next call.
// Frame.Body aliases input and is only valid during fn.
func (d *Decoder) Feed(input InputBuffer, fn func(Frame)) int {
	frames := 0
	for {
		data := input.Data()
		if len(data) == 0 {
			return frames
		}

		if d.desynced {
			pos := indexByte(data, SyncByte)
			if pos < 0 {
				input.Pop(len(data))
				return frames
			}
			input.Pop(pos + 1)
			d.desynced = false
			continue
		}

		// Skip leading sync bytes
		if data[0] == SyncByte {
			input.Pop(1)
			continue
		}
		if len(data) < FrameMin {
			return frames
		}

		length := int(data[PositionLenHi])<<8 | int(data[PositionLenLo])
		if length < FrameMin || length > FrameMax {
			d.reject(input)
			continue
		}
		if len(data) < length {
			return frames
		}
		if data[length-1] != SyncByte {
			d.reject(input)
			continue
		}
		crc := uint16(data[length-3])<<8 | uint16(data[length-2])
		if crc != CRC16(data[:length-TrailerSize]) {
			d.reject(input)
			continue
		}

		fn(Frame{
			Seq:  data[PositionSeq],
			Cmd:  data[PositionCmd],
			Body: data[HeaderSize : length-TrailerSize],
		})
		frames++
		input.Pop(length)
	}
}

func (d *Decoder) reject(input InputBuffer) {
	d.Dropped++
	d.desynced = true
	input.Pop(1)
}

// Reset forgets any partial resync state
func (d *Decoder) Reset() {
	d.desynced = false
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
