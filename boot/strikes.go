package boot

import "github.com/quartzlabs/dualboot/bootbits"

// strikePair is a 2-bit saturating failure counter spread over two boot
// bits. The encoding is 00 -> 10 -> 11 -> 00 (set one, then set two, then
// clear both); it is shared with deployed bootloaders and must not be
// simplified into a binary counter.
type strikePair struct {
	one, two bootbits.Bit
}

var (
	fwStartStrikes      = strikePair{bootbits.FWStartFailStrikeOne, bootbits.FWStartFailStrikeTwo}
	recoveryLoadStrikes = strikePair{bootbits.RecoveryLoadFailStrikeOne, bootbits.RecoveryLoadFailStrikeTwo}
)

// record registers one more failure. Returns true on the third strike, after
// resetting the counter to zero.
func (p strikePair) record(bits bootbits.Store) bool {
	if bits.Test(p.two) {
		p.clear(bits)
		return true
	}

	if bits.Test(p.one) {
		bits.Set(p.two)
	} else {
		bits.Set(p.one)
	}
	return false
}

// max forces the counter to two strikes, so the next failure is the third.
func (p strikePair) max(bits bootbits.Store) {
	bits.Set(p.one)
	bits.Set(p.two)
}

func (p strikePair) clear(bits bootbits.Store) {
	bits.Clear(p.one)
	bits.Clear(p.two)
}
