package boot

// sadWatch is the terminal diagnostic halt. It shows the error code, then
// busy-loops watching a single button; any pressed/released transition
// triggers a full hardware reset and a fresh run of the whole decision
// sequence. Deliberately the most minimal path in the system: no flash
// access, no dynamic state, so it stays reachable with flash or RAM
// partially corrupted.
func (b *Boot) sadWatch(code uint32) {
	b.log("halt: error code %d", code)
	b.hw.DisplayCode(code)

	prev := b.hw.ButtonsHeld() & ButtonBack
	for {
		b.hw.Delay(b.opts.PollInterval)

		cur := b.hw.ButtonsHeld() & ButtonBack
		if cur != prev {
			b.hw.FullReset()
			return
		}
	}
}
