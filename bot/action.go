package bot

import "nesbot/nes"

type ActionKind uint8

const (
	ActionUnknown ActionKind = iota // unmapped token, ignored
	ActionToggle                    // flip one pad button
	ActionAdvance                   // run the game until playable again
	ActionReset                     // hard reset and re-run the boot script
)

// An Action is one decoded UI event. Tokens are translated here, at the
// boundary, so the rest of the loop never matches on strings.
type Action struct {
	Kind   ActionKind
	Button nes.PadButton // valid only for ActionToggle
}

var buttonTokens = map[string]nes.PadButton{
	"a":     nes.PadA,
	"b":     nes.PadB,
	"up":    nes.PadUp,
	"down":  nes.PadDown,
	"left":  nes.PadLeft,
	"right": nes.PadRight,
}

// DecodeAction maps a component custom_id to an action. Unknown tokens,
// including the disabled filler buttons of the grid, decode to
// ActionUnknown.
func DecodeAction(customID string) Action {
	switch customID {
	case "next":
		return Action{Kind: ActionAdvance}
	case "reset":
		return Action{Kind: ActionReset}
	}
	if b, ok := buttonTokens[customID]; ok {
		return Action{Kind: ActionToggle, Button: b}
	}
	return Action{Kind: ActionUnknown}
}
