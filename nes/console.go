// Package nes defines the console collaborator surface the bot drives: a
// frame-steppable NES with a readable frame buffer, a RAM probe and a pad
// input sink. The actual emulation runs out of process and is reached
// through the RPC client in this package.
package nes

import (
	"fmt"
	"image"
)

const (
	Width  = 256
	Height = 240
)

type PadButton uint8

// Bit positions in the standard controller byte. This layout is a hardware
// contract: the console samples the pad byte in this exact order.
const (
	PadA PadButton = iota
	PadB
	PadSelect
	PadStart
	PadUp
	PadDown
	PadLeft
	PadRight
)

func (b PadButton) String() string {
	names := [...]string{"a", "b", "select", "start", "up", "down", "left", "right"}
	if int(b) < len(names) {
		return names[b]
	}
	return fmt.Sprintf("pad(%d)", uint8(b))
}

// Bit returns the pad byte with only this button held.
func (b PadButton) Bit() uint8 {
	return 1 << b
}

// A Frame is one rendered video frame: Width*Height pixels, 4 bytes per
// pixel in R,G,B,A byte order, rows top to bottom.
type Frame []byte

const frameSize = Width * Height * 4

// ToRGBA converts the raw frame buffer into an image. The conversion is a
// straight copy since the buffer already uses the codec byte order, but it
// is kept explicit so the channel layout stays pinned down by tests.
func (f Frame) ToRGBA() (*image.RGBA, error) {
	if len(f) != frameSize {
		return nil, fmt.Errorf("bad frame buffer size: %d bytes, want %d", len(f), frameSize)
	}
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	copy(img.Pix, f)
	return img, nil
}

// Console is the emulator collaborator. Implementations are not expected to
// be safe for concurrent use: the session loop is the single caller.
type Console interface {
	// StepFrame advances emulation by exactly one video frame. The pad
	// state last passed to SetPads is sampled during the frame.
	StepFrame() error

	// Frame returns the frame buffer rendered by the last StepFrame.
	Frame() (Frame, error)

	// Reset performs a hard reset of the console.
	Reset() error

	// Peek reads one byte from console RAM.
	Peek(addr uint16) (byte, error)

	// SetPads sets the state of both standard controller pads.
	SetPads(pad1, pad2 uint8) error
}
