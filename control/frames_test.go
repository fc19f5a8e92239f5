package control

import (
	"bytes"
	"testing"

	"pulsegen/protocol"
)

func TestFrameServerRepliesWithRequestSeq(t *testing.T) {
	srv := NewFrameServer(NewHandler(newFakeDevice(), nil))

	req, err := protocol.AppendFrame(nil, 7, byte(CmdSubmit), []byte("pulses=3&rpm=30&enabled=1"))
	if err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	req, _ = protocol.AppendFrame(req, 8, byte(CmdStatus), nil)

	var out []byte
	n := srv.Process(protocol.NewSliceInputBuffer(req), func(b []byte) {
		out = append(out, b...)
	})
	if n != 2 {
		t.Fatalf("served %d requests, want 2", n)
	}

	var replies []protocol.Frame
	var dec protocol.Decoder
	dec.Feed(protocol.NewSliceInputBuffer(out), func(f protocol.Frame) {
		f.Body = append([]byte(nil), f.Body...)
		replies = append(replies, f)
	})
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if replies[0].Seq != 7 || replies[0].Cmd != byte(CmdSubmit) {
		t.Errorf("first reply seq=%d cmd=%c", replies[0].Seq, replies[0].Cmd)
	}
	if !bytes.HasPrefix(replies[0].Body, []byte(`{"status":"ok","pulses":3,"rpm":30.0,"freq":1.500`)) {
		t.Errorf("submit reply = %s", replies[0].Body)
	}
	if replies[1].Seq != 8 || !bytes.HasPrefix(replies[1].Body, []byte(`{"pulses":3,`)) {
		t.Errorf("status reply seq=%d body=%s", replies[1].Seq, replies[1].Body)
	}
}

func TestFrameServerSkipsCorruptFrame(t *testing.T) {
	srv := NewFrameServer(NewHandler(newFakeDevice(), nil))

	bad, _ := protocol.AppendFrame(nil, 1, byte(CmdStatus), nil)
	bad[len(bad)-2] ^= 0xFF
	req, _ := protocol.AppendFrame(bad, 2, byte(CmdStatus), nil)

	replies := 0
	n := srv.Process(protocol.NewSliceInputBuffer(req), func([]byte) { replies++ })
	if n != 1 || replies != 1 {
		t.Errorf("served %d, replied %d; want 1 and 1", n, replies)
	}
	if srv.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", srv.Dropped())
	}
}
