package pio

import "testing"

func TestProgramWrapCoversWholeProgram(t *testing.T) {
	for _, offset := range []uint8{0, 5, 28} {
		target, top := programWrap(offset)
		if target != offset {
			t.Errorf("offset %d: wrap target = %d, want %d", offset, target, offset)
		}
		if top != offset+txProgramLen-1 {
			t.Errorf("offset %d: wrap top = %d, want %d", offset, top, offset+txProgramLen-1)
		}
		if top < target {
			t.Errorf("offset %d: wrap top %d before target %d", offset, top, target)
		}
	}
}

func TestPassSlotsLimitIncludesPlayingPass(t *testing.T) {
	s := newPassSlots(4)
	for i := 0; i < 4; i++ {
		if !s.acquire() {
			t.Fatalf("acquire %d refused", i)
		}
	}
	// one of the four is with the feeder; a fifth must still be refused
	if s.acquire() {
		t.Error("fifth transmission accepted with depth 4")
	}

	s.release()
	if !s.acquire() {
		t.Error("slot not reusable after release")
	}
	for i := 0; i < 4; i++ {
		s.release()
	}
	if s.busy() {
		t.Error("busy after all slots released")
	}
}

func TestPassSlotsDefaultDepth(t *testing.T) {
	s := newPassSlots(0)
	if !s.acquire() || s.acquire() {
		t.Error("depth 0 should allow exactly one transmission")
	}
}
