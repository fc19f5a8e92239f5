//go:build rp2040

package pio

import "sync"

// RP2040 has 2 PIO blocks with 4 state machines each
const (
	numPIO = 2
	numSM  = 4
)

var (
	allocMu        sync.Mutex
	pioAllocations = [numPIO][numSM]bool{} // [pioNum][smNum]
	nextPIONum     = uint8(0)
	nextSMNum      = uint8(0)
)

// allocatePIO allocates a PIO state machine.
// Returns (pioNum, smNum, ok)
func allocatePIO() (uint8, uint8, bool) {
	allocMu.Lock()
	defer allocMu.Unlock()

	// Round-robin so a just-released machine is reused last
	for i := 0; i < numPIO*numSM; i++ {
		pioNum := nextPIONum
		smNum := nextSMNum

		nextSMNum++
		if nextSMNum >= numSM {
			nextSMNum = 0
			nextPIONum = (nextPIONum + 1) % numPIO
		}

		if !pioAllocations[pioNum][smNum] {
			pioAllocations[pioNum][smNum] = true
			return pioNum, smNum, true
		}
	}
	return 0, 0, false
}

// releasePIO returns a state machine to the pool
func releasePIO(pioNum, smNum uint8) {
	allocMu.Lock()
	pioAllocations[pioNum][smNum] = false
	allocMu.Unlock()
}
