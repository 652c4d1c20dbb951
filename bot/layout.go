package bot

import (
	"nesbot/discord"
	"nesbot/nes"
)

// Rows projects the pad byte onto the fixed button grid. Mapped buttons are
// Primary when released and Success when held; filler slots are disabled
// Secondary buttons so the grid keeps its shape.
func Rows(pad uint8) []discord.ActionRow {
	mapped := func(id, label string, b nes.PadButton) discord.Button {
		style := discord.Primary
		if pad&b.Bit() != 0 {
			style = discord.Success
		}
		return discord.Button{CustomID: id, Label: label, Style: style}
	}
	blank := func(id string) discord.Button {
		return discord.Button{CustomID: id, Label: "_", Style: discord.Secondary, Disabled: true}
	}
	macro := func(id, label string) discord.Button {
		return discord.Button{CustomID: id, Label: label, Style: discord.Secondary}
	}

	return []discord.ActionRow{
		{Buttons: []discord.Button{
			blank("00"),
			mapped("up", "⬆", nes.PadUp),
			blank("02"),
			blank("03"),
			blank("04"),
		}},
		{Buttons: []discord.Button{
			mapped("left", "⬅", nes.PadLeft),
			blank("11"),
			mapped("right", "➡", nes.PadRight),
			blank("13"),
			mapped("a", "🅰️", nes.PadA),
		}},
		{Buttons: []discord.Button{
			blank("20"),
			mapped("down", "⬇", nes.PadDown),
			blank("22"),
			mapped("b", "🅱️", nes.PadB),
			blank("24"),
		}},
		{Buttons: []discord.Button{
			macro("next", "Next"),
			macro("reset", "Reset"),
		}},
	}
}

// A Directive tells the transport what to do with the message's attachment:
// upload File when it is set, otherwise keep referencing Ref so the
// platform retains the previously uploaded artifact.
type Directive struct {
	File *discord.File
	Ref  discord.Snowflake
}

// Sync composes UI updates and tracks the attachment id of the artifact
// currently on display.
type Sync struct {
	ref discord.Snowflake
}

func NewSync(ref discord.Snowflake) *Sync {
	return &Sync{ref: ref}
}

// Compose builds the button grid for the pad byte and the attachment
// directive: attach art when one was produced, else keep the live
// attachment by reference.
func (s *Sync) Compose(pad uint8, art *Artifact) ([]discord.ActionRow, Directive) {
	rows := Rows(pad)
	if art == nil {
		return rows, Directive{Ref: s.ref}
	}
	return rows, Directive{File: art.File()}
}

// SetRef records the attachment id of a freshly uploaded artifact.
func (s *Sync) SetRef(ref discord.Snowflake) {
	s.ref = ref
}

func (s *Sync) Ref() discord.Snowflake {
	return s.ref
}
