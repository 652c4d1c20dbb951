package bot

import (
	"context"
	"fmt"

	"nesbot/discord"
	"nesbot/log"
)

// Transport is the slice of the messaging API the loop publishes through.
// *discord.Client implements it; tests use a recording fake.
type Transport interface {
	DeferUpdate(ctx context.Context, i *discord.Interaction) error
	UpdateKeep(ctx context.Context, i *discord.Interaction, rows []discord.ActionRow, ref discord.Snowflake) error
	EditOriginal(ctx context.Context, i *discord.Interaction, rows []discord.ActionRow, f *discord.File) (*discord.Message, error)
}

var _ Transport = (*discord.Client)(nil)

// Loop serializes all session mutations: interactions are handled strictly
// in arrival order, one at a time, and each response is published before
// the next interaction is taken.
type Loop struct {
	sess *Session
	sync *Sync
	tr   Transport
}

// NewLoop wires a booted session to a transport. ref is the attachment id
// of the artifact currently on display.
func NewLoop(sess *Session, tr Transport, ref discord.Snowflake) *Loop {
	return &Loop{
		sess: sess,
		sync: NewSync(ref),
		tr:   tr,
	}
}

// Run consumes interactions until the channel closes or ctx is cancelled.
// Encoding and console faults are fatal: the session is closed and the
// error returned. Transport faults are logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context, events <-chan *discord.Interaction) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case i, ok := <-events:
			if !ok {
				log.ModMain.InfoZ("event stream ended").End()
				return nil
			}
			if err := l.handle(ctx, i); err != nil {
				l.sess.Close()
				return err
			}
		}
	}
}

func (l *Loop) handle(ctx context.Context, i *discord.Interaction) error {
	act := DecodeAction(i.CustomID)
	switch act.Kind {
	case ActionUnknown:
		log.ModMain.DebugZ("unmapped token ignored").String("token", i.CustomID).End()
		return nil

	case ActionToggle:
		pad := l.sess.Pad().Toggle(act.Button)
		rows, dir := l.sync.Compose(pad, nil)
		l.publish("toggle update", func() error {
			return l.tr.UpdateKeep(ctx, i, rows, dir.Ref)
		})
		return nil

	case ActionAdvance:
		if !l.deferAck(ctx, i, "advance") {
			return nil
		}
		anim := NewAnimation()
		if err := l.sess.Advance(anim); err != nil {
			return fmt.Errorf("advance macro: %w", err)
		}
		art, err := anim.Close()
		if err != nil {
			return fmt.Errorf("advance macro: %w", err)
		}
		l.attach(ctx, i, art)
		return nil

	case ActionReset:
		if !l.deferAck(ctx, i, "reset") {
			return nil
		}
		if err := l.sess.ResetGame(); err != nil {
			return fmt.Errorf("reset macro: %w", err)
		}
		art, err := l.sess.Still()
		if err != nil {
			return fmt.Errorf("reset macro: %w", err)
		}
		l.attach(ctx, i, art)
		return nil
	}
	return nil
}

// deferAck acknowledges a macro interaction before the slow render. If even
// the retried ack fails the macro is skipped entirely: nothing was rendered
// yet and the displayed artifact stays consistent.
func (l *Loop) deferAck(ctx context.Context, i *discord.Interaction, what string) bool {
	return l.publish(what+" ack", func() error {
		return l.tr.DeferUpdate(ctx, i)
	})
}

// attach publishes a freshly encoded artifact via the deferred follow-up
// and records its attachment id for later keep-by-reference updates.
func (l *Loop) attach(ctx context.Context, i *discord.Interaction, art *Artifact) {
	rows, dir := l.sync.Compose(l.sess.Pad().Load(), art)
	var msg *discord.Message
	ok := l.publish("artifact update", func() error {
		var err error
		msg, err = l.tr.EditOriginal(ctx, i, rows, dir.File)
		return err
	})
	if !ok {
		return
	}
	if len(msg.Attachments) == 0 {
		log.ModMain.WarnZ("artifact update returned no attachment").End()
		return
	}
	l.sync.SetRef(msg.Attachments[0].ID)
}

// publish runs a transport call, retrying once. A transport failure is
// local: it is logged and the session stays usable for the next event.
func (l *Loop) publish(what string, fn func() error) bool {
	err := fn()
	if err == nil {
		return true
	}
	log.ModMain.WarnZ("publish failed, retrying").String("op", what).Error("err", err).End()
	if err = fn(); err == nil {
		return true
	}
	log.ModMain.ErrorZ("publish failed").String("op", what).Error("err", err).End()
	return false
}
