// Package discord is a minimal client for the parts of the Discord API the
// bot needs: posting and editing component messages with file attachments,
// and receiving component interactions from the gateway.
package discord

import (
	"fmt"

	"github.com/go-faster/jx"
)

// Snowflake is a Discord object id. Kept as a string since the API
// serializes ids as strings and the bot never does arithmetic on them.
type Snowflake string

type ButtonStyle int

const (
	Primary   ButtonStyle = 1
	Secondary ButtonStyle = 2
	Success   ButtonStyle = 3
	Danger    ButtonStyle = 4
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
	Disabled bool
}

// An ActionRow is one horizontal row of buttons.
type ActionRow struct {
	Buttons []Button
}

const (
	componentTypeActionRow = 1
	componentTypeButton    = 2
)

func encodeRows(e *jx.Encoder, rows []ActionRow) {
	e.ArrStart()
	for _, row := range rows {
		e.ObjStart()
		e.FieldStart("type")
		e.Int(componentTypeActionRow)
		e.FieldStart("components")
		e.ArrStart()
		for _, b := range row.Buttons {
			e.ObjStart()
			e.FieldStart("type")
			e.Int(componentTypeButton)
			e.FieldStart("style")
			e.Int(int(b.Style))
			e.FieldStart("custom_id")
			e.Str(b.CustomID)
			e.FieldStart("label")
			e.Str(b.Label)
			e.FieldStart("disabled")
			e.Bool(b.Disabled)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
}

// A File is an artifact to upload: name, media type and raw bytes.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Attachment struct {
	ID       Snowflake
	Filename string
}

type Message struct {
	ID          Snowflake
	ChannelID   Snowflake
	Attachments []Attachment
}

func decodeMessage(data []byte) (*Message, error) {
	var msg Message
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			msg.ID = Snowflake(s)
			return err
		case "channel_id":
			s, err := d.Str()
			msg.ChannelID = Snowflake(s)
			return err
		case "attachments":
			return d.Arr(func(d *jx.Decoder) error {
				var att Attachment
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "id":
						s, err := d.Str()
						att.ID = Snowflake(s)
						return err
					case "filename":
						s, err := d.Str()
						att.Filename = s
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				msg.Attachments = append(msg.Attachments, att)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, fmt.Errorf("malformed message payload: %w", err)
	}
	return &msg, nil
}

const interactionTypeComponent = 3

// An Interaction is one component click received from the gateway, together
// with the token needed to acknowledge it.
type Interaction struct {
	ID            Snowflake
	ApplicationID Snowflake
	ChannelID     Snowflake
	Token         string
	CustomID      string
}

func decodeInteraction(d *jx.Decoder) (*Interaction, error) {
	var (
		i    Interaction
		ityp int
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			s, err := d.Str()
			i.ID = Snowflake(s)
			return err
		case "application_id":
			s, err := d.Str()
			i.ApplicationID = Snowflake(s)
			return err
		case "channel_id":
			s, err := d.Str()
			i.ChannelID = Snowflake(s)
			return err
		case "token":
			s, err := d.Str()
			i.Token = s
			return err
		case "type":
			v, err := d.Int()
			ityp = v
			return err
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "custom_id":
					s, err := d.Str()
					i.CustomID = s
					return err
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("malformed interaction payload: %w", err)
	}
	if ityp != interactionTypeComponent {
		return nil, nil
	}
	return &i, nil
}
