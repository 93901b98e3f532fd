package bootbits

// ButtonCounter tracks, per button, how many consecutive boots the button was
// seen held. It packs four 8-bit counters into one backup register word, so
// the stuck-button self-test survives reset like the boot flags do.
type ButtonCounter struct {
	reg Word
}

func NewButtonCounter(reg Word) *ButtonCounter {
	return &ButtonCounter{reg: reg}
}

func (c *ButtonCounter) Get(button int) uint8 {
	return uint8(c.reg.Load() >> (button * 8))
}

// Increment bumps the counter for one button, saturating at 0xff.
func (c *ButtonCounter) Increment(button int) uint8 {
	v := c.Get(button)
	if v < 0xff {
		v++
	}
	c.set(button, v)
	return v
}

func (c *ButtonCounter) Reset(button int) {
	c.set(button, 0)
}

func (c *ButtonCounter) set(button int, v uint8) {
	shift := button * 8
	c.reg.Store(c.reg.Load()&^(0xff<<shift) | uint32(v)<<shift)
}
