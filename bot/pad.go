// Package bot implements the interactive control loop: it consumes component
// interactions, mutates the pad state, drives the console session forward
// and publishes the updated button grid and video artifact back to the chat.
package bot

import (
	"sync/atomic"

	"nesbot/log"
	"nesbot/nes"
)

// Pad holds the 8-bit state of the standard controller, one bit per held
// button. The dispatch loop is the only writer; reads use atomics so a
// frame-stepping pipeline moved off-thread later would still see a
// consistent byte.
type Pad struct {
	state atomic.Uint32
}

// Toggle flips the bit for one button and returns the new pad byte.
func (p *Pad) Toggle(b nes.PadButton) uint8 {
	v := uint8(p.state.Load()) ^ b.Bit()
	p.state.Store(uint32(v))
	log.ModInput.DebugZ("pad state update").
		String("button", b.String()).
		Bool("held", v&b.Bit() != 0).
		Hex8("pad", v).
		End()
	return v
}

func (p *Pad) Load() uint8 {
	return uint8(p.state.Load())
}

func (p *Pad) Store(v uint8) {
	p.state.Store(uint32(v))
}
