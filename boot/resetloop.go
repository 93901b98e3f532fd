package boot

import "github.com/quartzlabs/dualboot/bootbits"

/* The reset-loop detector is a 3-bit counter independent of the strike
 * pairs. It increments on every boot that reaches the end of the decision
 * sequence and catches oscillation between paths the other checks each
 * consider successful. A stable firmware run resets it. */

func resetLoopValue(bits bootbits.Store) uint32 {
	v := uint32(0)
	if bits.Test(bootbits.ResetLoopDetectOne) {
		v |= 1
	}
	if bits.Test(bootbits.ResetLoopDetectTwo) {
		v |= 2
	}
	if bits.Test(bootbits.ResetLoopDetectThree) {
		v |= 4
	}
	return v
}

func resetLoopStore(bits bootbits.Store, v uint32) {
	store := func(b bootbits.Bit, set bool) {
		if set {
			bits.Set(b)
		} else {
			bits.Clear(b)
		}
	}

	store(bootbits.ResetLoopDetectOne, v&1 != 0)
	store(bootbits.ResetLoopDetectTwo, v&2 != 0)
	store(bootbits.ResetLoopDetectThree, v&4 != 0)
}
