package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"nesbot/discord"
)

type call struct {
	op    string // "defer", "keep" or "edit"
	ref   discord.Snowflake
	media string
	rows  []discord.ActionRow
}

// fakeTransport records every publish and mints attachment ids for
// uploads. failKeep makes the next n UpdateKeep calls fail.
type fakeTransport struct {
	calls        []call
	keepAttempts int
	failKeep     int
	nextID       int
}

func (ft *fakeTransport) DeferUpdate(ctx context.Context, i *discord.Interaction) error {
	ft.calls = append(ft.calls, call{op: "defer"})
	return nil
}

func (ft *fakeTransport) UpdateKeep(ctx context.Context, i *discord.Interaction, rows []discord.ActionRow, ref discord.Snowflake) error {
	ft.keepAttempts++
	if ft.failKeep > 0 {
		ft.failKeep--
		return errors.New("upstream hiccup")
	}
	ft.calls = append(ft.calls, call{op: "keep", ref: ref, rows: rows})
	return nil
}

func (ft *fakeTransport) EditOriginal(ctx context.Context, i *discord.Interaction, rows []discord.ActionRow, f *discord.File) (*discord.Message, error) {
	ft.nextID++
	id := discord.Snowflake(fmt.Sprintf("att-%d", ft.nextID))
	ft.calls = append(ft.calls, call{op: "edit", media: f.ContentType, rows: rows})
	return &discord.Message{
		Attachments: []discord.Attachment{{ID: id, Filename: f.Name}},
	}, nil
}

func (ft *fakeTransport) ops() []string {
	ops := make([]string, len(ft.calls))
	for i, c := range ft.calls {
		ops[i] = c.op
	}
	return ops
}

// runLoop boots a session against console and runs a loop over the given
// tokens, all arriving before the stream ends.
func runLoop(t *testing.T, console *fakeConsole, tr *fakeTransport, tokens ...string) (*Loop, error) {
	t.Helper()

	sess := newTestSession(console)
	if err := sess.Boot(); err != nil {
		t.Fatal(err)
	}

	loop := NewLoop(sess, tr, "att-0")

	events := make(chan *discord.Interaction, len(tokens))
	for _, tok := range tokens {
		events <- &discord.Interaction{ID: "1", Token: "tok", CustomID: tok}
	}
	close(events)

	return loop, loop.Run(context.Background(), events)
}

func TestLoopToggleKeepsAttachment(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{}

	loop, err := runLoop(t, console, tr, "up", "a")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"keep", "keep"}, tr.ops()); diff != "" {
		t.Fatalf("publish ops mismatch (-want +got):\n%s", diff)
	}
	for _, c := range tr.calls {
		if c.ref != "att-0" {
			t.Errorf("keep ref = %q, want att-0", c.ref)
		}
	}

	if pad := loop.sess.Pad().Load(); pad != 0b0001_0001 {
		t.Errorf("pad = %#08b, want 0b0001_0001", pad)
	}
	if diff := cmp.Diff(Rows(0b0001_0001), tr.calls[1].rows); diff != "" {
		t.Errorf("published grid mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopUnknownTokenIgnored(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{}

	loop, err := runLoop(t, console, tr, "99")
	if err != nil {
		t.Fatal(err)
	}

	if len(tr.calls) != 0 {
		t.Fatalf("unmapped token published %d responses", len(tr.calls))
	}
	if pad := loop.sess.Pad().Load(); pad != 0 {
		t.Errorf("unmapped token changed the pad: %#02x", pad)
	}
}

func TestLoopAdvanceAttachesAnimation(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{}

	loop, err := runLoop(t, console, tr, "next", "a")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"defer", "edit", "keep"}, tr.ops()); diff != "" {
		t.Fatalf("publish ops mismatch (-want +got):\n%s", diff)
	}
	if tr.calls[1].media != "image/gif" {
		t.Errorf("advance attached %q, want image/gif", tr.calls[1].media)
	}

	// The toggle after the macro must reference the new attachment.
	if tr.calls[2].ref != "att-1" {
		t.Errorf("post-macro keep ref = %q, want att-1", tr.calls[2].ref)
	}
	if loop.sync.Ref() != "att-1" {
		t.Errorf("sync ref = %q, want att-1", loop.sync.Ref())
	}
}

func TestLoopResetAttachesStill(t *testing.T) {
	console := &fakeConsole{readyAt: 30, resetDelay: 30}
	tr := &fakeTransport{}

	loop, err := runLoop(t, console, tr, "up", "reset")
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"keep", "defer", "edit"}, tr.ops()); diff != "" {
		t.Fatalf("publish ops mismatch (-want +got):\n%s", diff)
	}
	if tr.calls[2].media != "image/png" {
		t.Errorf("reset attached %q, want image/png", tr.calls[2].media)
	}
	if pad := loop.sess.Pad().Load(); pad != 0 {
		t.Errorf("pad after reset = %#02x, want 0", pad)
	}
}

func TestLoopTransportRetry(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{failKeep: 1}

	_, err := runLoop(t, console, tr, "up")
	if err != nil {
		t.Fatal(err)
	}
	if tr.keepAttempts != 2 {
		t.Errorf("keep attempted %d times, want 2 (one retry)", tr.keepAttempts)
	}
	if diff := cmp.Diff([]string{"keep"}, tr.ops()); diff != "" {
		t.Errorf("publish ops mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopTransportFailureIsLocal(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{failKeep: 2}

	// The first toggle's publish fails both attempts; the loop must keep
	// going and handle the second toggle normally.
	loop, err := runLoop(t, console, tr, "up", "a")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"keep"}, tr.ops()); diff != "" {
		t.Fatalf("publish ops mismatch (-want +got):\n%s", diff)
	}
	if pad := loop.sess.Pad().Load(); pad != 0b0001_0001 {
		t.Errorf("pad = %#08b, want 0b0001_0001", pad)
	}
}

func TestLoopFatalFaultClosesSession(t *testing.T) {
	console := &fakeConsole{readyAt: 30}
	tr := &fakeTransport{}

	sess := newTestSession(console)
	if err := sess.Boot(); err != nil {
		t.Fatal(err)
	}
	loop := NewLoop(sess, tr, "att-0")

	console.stepErr = errors.New("bus fault")
	events := make(chan *discord.Interaction, 1)
	events <- &discord.Interaction{CustomID: "next"}
	close(events)

	if err := loop.Run(context.Background(), events); err == nil {
		t.Fatal("Run() succeeded despite console fault")
	}
	if sess.State() != StateClosed {
		t.Errorf("session state = %s, want closed", sess.State())
	}
}
