// Package protocol implements the framed control link between the host and
// the firmware.
//
// A frame is
//
//	[len hi][len lo][seq][cmd][body ...][crc hi][crc lo][0x7E]
//
// where len counts the whole frame and the CRC covers everything before it.
// A reply carries the sequence number of the request it answers.
package protocol

// Version is the control link protocol version
const Version = "1"

// Frame layout
const (
	HeaderSize  = 4 // length (2), sequence, command
	TrailerSize = 3 // CRC (2), sync
	FrameMin    = HeaderSize + TrailerSize
	BodyMax     = 1024
	FrameMax    = FrameMin + BodyMax

	// MessageMax sizes a scratch buffer for one outgoing frame
	MessageMax = FrameMax

	PositionLenHi = 0
	PositionLenLo = 1
	PositionSeq   = 2
	PositionCmd   = 3

	SyncByte = 0x7E
)

// Frame is one decoded control link message
type Frame struct {
	Seq  uint8
	Cmd  byte
	Body []byte
}
