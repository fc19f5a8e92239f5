package control

import "pulsegen/protocol"

// FrameServer answers control requests arriving as protocol frames. Each
// reply carries the request's sequence number and command byte.
type FrameServer struct {
	dec     protocol.Decoder
	h       *Handler
	scratch *protocol.ScratchOutput
}

// NewFrameServer creates a frame server dispatching to h
func NewFrameServer(h *Handler) *FrameServer {
	return &FrameServer{
		h:       h,
		scratch: protocol.NewScratchOutput(protocol.MessageMax),
	}
}

// Process handles every complete frame buffered in in and passes each
// encoded reply to write. It returns the number of requests served.
func (s *FrameServer) Process(in protocol.InputBuffer, write func([]byte)) int {
	return s.dec.Feed(in, func(f protocol.Frame) {
		reply := s.h.Handle(Command(f.Cmd), f.Body)
		if len(reply) > protocol.BodyMax {
			reply = []byte(`{"status":"error","msg":"reply too large"}`)
		}
		s.scratch.Reset()
		if err := protocol.EncodeFrame(s.scratch, f.Seq, f.Cmd, reply); err != nil {
			s.h.log.Errorf("encode frame: %v", err)
			return
		}
		write(s.scratch.Result())
	})
}

// Dropped returns the number of corrupt frames discarded so far
func (s *FrameServer) Dropped() int {
	return s.dec.Dropped
}
