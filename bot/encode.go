package bot

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"

	"nesbot/discord"
	"nesbot/nes"
)

// An Artifact is an encoded video artifact ready to publish: a lossless
// still of a single frame or an animation of a captured frame run.
type Artifact struct {
	Name      string
	MediaType string
	Data      []byte
}

func (a *Artifact) File() *discord.File {
	return &discord.File{Name: a.Name, ContentType: a.MediaType, Data: a.Data}
}

// EncodeStill encodes one frame as a PNG artifact.
func EncodeStill(f nes.Frame) (*Artifact, error) {
	img, err := f.ToRGBA()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode failed: %w", err)
	}
	return &Artifact{
		Name:      "frame.png",
		MediaType: "image/png",
		Data:      buf.Bytes(),
	}, nil
}

// gifFrameDelay is the per-frame delay in 1/100s. With the session
// capturing every 2nd emulated frame, 3/100s per capture plays the run back
// at roughly the emulated speed.
const gifFrameDelay = 3

// Animation is a streaming sink for frames captured during an advance. Each
// frame is palettized as it arrives, so the peak memory held is the
// compact paletted frames rather than the raw RGBA captures: one byte per
// pixel, or ~60 KiB per capture. The session's advance budget bounds the
// total; at the 3600-frame default that is at most 1800 captures, ~110 MiB.
type Animation struct {
	frames []*image.Paletted
	delays []int
}

func NewAnimation() *Animation {
	return &Animation{}
}

// Add converts one captured frame and appends it to the animation.
func (a *Animation) Add(f nes.Frame) error {
	img, err := f.ToRGBA()
	if err != nil {
		return err
	}
	pm := image.NewPaletted(img.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(pm, img.Bounds(), img, image.Point{})
	a.frames = append(a.frames, pm)
	a.delays = append(a.delays, gifFrameDelay)
	return nil
}

func (a *Animation) Len() int {
	return len(a.frames)
}

// Close encodes the accumulated frames as a looping GIF artifact. It is an
// error to close an animation no frames were added to.
func (a *Animation) Close() (*Artifact, error) {
	if len(a.frames) == 0 {
		return nil, fmt.Errorf("animation has no frames")
	}
	var buf bytes.Buffer
	g := &gif.GIF{Image: a.frames, Delay: a.delays}
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("gif encode failed: %w", err)
	}
	return &Artifact{
		Name:      "frames.gif",
		MediaType: "image/gif",
		Data:      buf.Bytes(),
	}, nil
}
