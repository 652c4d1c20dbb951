package bot

import (
	"errors"
	"fmt"

	"nesbot/log"
	"nesbot/nes"
)

// ErrProbeTimeout reports that the playable-state probe never came true
// within the configured frame budget. It is fatal to the session.
var ErrProbeTimeout = errors.New("playable-state probe timed out")

type State uint8

const (
	StateBooting State = iota
	StateIdle
	StateAdvancing
	StateResetting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateIdle:
		return "idle"
	case StateAdvancing:
		return "advancing"
	case StateResetting:
		return "resetting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type SessionConfig struct {
	// BootIdleFrames is the number of frames to idle before and after the
	// scripted Start press during boot.
	BootIdleFrames int `toml:"boot_idle_frames"`

	// The session is considered playable when RAM at ProbeAddr reads
	// ProbeValue. Defaults probe the SMB player-state byte.
	ProbeAddr  uint16 `toml:"probe_addr"`
	ProbeValue byte   `toml:"probe_value"`

	// ProbeBudget bounds the boot/reset probe polling loop, in frames.
	ProbeBudget int `toml:"probe_budget"`

	// An advance captures a frame every CaptureEvery emulated frames, at
	// least MinCaptures times, and keeps going until the probe is true
	// again or AdvanceBudget frames have been stepped.
	MinCaptures   int `toml:"min_captures"`
	CaptureEvery  int `toml:"capture_every"`
	AdvanceBudget int `toml:"advance_budget"`
}

func (c *SessionConfig) fillDefaults() {
	if c.BootIdleFrames == 0 {
		c.BootIdleFrames = 60
	}
	if c.ProbeAddr == 0 && c.ProbeValue == 0 {
		c.ProbeAddr = 0x000E
		c.ProbeValue = 0x08
	}
	if c.ProbeBudget == 0 {
		c.ProbeBudget = 1800
	}
	if c.MinCaptures == 0 {
		c.MinCaptures = 5
	}
	if c.CaptureEvery == 0 {
		c.CaptureEvery = 2
	}
	if c.AdvanceBudget == 0 {
		c.AdvanceBudget = 3600
	}
}

// A Session owns one live console and its pad. All methods must be called
// from the dispatch loop: the session has no internal synchronization and
// never runs two console operations at once.
type Session struct {
	console nes.Console
	pad     Pad
	cfg     SessionConfig

	state  State
	frames uint64
}

func NewSession(console nes.Console, cfg SessionConfig) *Session {
	cfg.fillDefaults()
	return &Session{
		console: console,
		cfg:     cfg,
		state:   StateBooting,
	}
}

func (s *Session) Pad() *Pad      { return &s.pad }
func (s *Session) State() State   { return s.state }
func (s *Session) Frames() uint64 { return s.frames }

// Close marks the session unusable after a fatal fault.
func (s *Session) Close() {
	s.state = StateClosed
}

// step syncs the pad to the console and advances exactly one frame.
func (s *Session) step() error {
	if err := s.console.SetPads(s.pad.Load(), 0); err != nil {
		return fmt.Errorf("pad write failed: %w", err)
	}
	if err := s.console.StepFrame(); err != nil {
		return fmt.Errorf("frame step failed: %w", err)
	}
	s.frames++
	return nil
}

func (s *Session) playable() (bool, error) {
	v, err := s.console.Peek(s.cfg.ProbeAddr)
	if err != nil {
		return false, fmt.Errorf("probe read failed: %w", err)
	}
	return v == s.cfg.ProbeValue, nil
}

// waitPlayable steps until the probe is true, bounded by budget frames.
func (s *Session) waitPlayable(budget int) error {
	for i := 0; i < budget; i++ {
		ok, err := s.playable()
		if err != nil {
			return err
		}
		if ok {
			log.ModSession.DebugZ("probe satisfied").
				Hex16("addr", s.cfg.ProbeAddr).
				Int("waited", i).
				End()
			return nil
		}
		if err := s.step(); err != nil {
			return err
		}
	}
	return fmt.Errorf("probe $%04X != %02x after %d frames: %w",
		s.cfg.ProbeAddr, s.cfg.ProbeValue, budget, ErrProbeTimeout)
}

// bootScript runs the scripted warm-up: idle, press Start for one frame,
// release, idle again, then poll the probe until the player has control.
func (s *Session) bootScript() error {
	for n := 0; n < s.cfg.BootIdleFrames; n++ {
		if err := s.step(); err != nil {
			return err
		}
	}

	s.pad.Store(nes.PadStart.Bit())
	if err := s.step(); err != nil {
		return err
	}
	s.pad.Store(0)

	for n := 0; n < s.cfg.BootIdleFrames; n++ {
		if err := s.step(); err != nil {
			return err
		}
	}
	return s.waitPlayable(s.cfg.ProbeBudget)
}

// Boot runs the boot script on a fresh session and leaves it idle.
func (s *Session) Boot() error {
	s.state = StateBooting
	if err := s.bootScript(); err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}
	s.state = StateIdle
	log.ModSession.InfoZ("session booted").Uint64("frames", s.frames).End()
	return nil
}

// Still encodes the console's current frame as a PNG artifact without
// stepping.
func (s *Session) Still() (*Artifact, error) {
	f, err := s.console.Frame()
	if err != nil {
		return nil, fmt.Errorf("frame read failed: %w", err)
	}
	return EncodeStill(f)
}

// Advance steps the console with the current pad held, feeding every
// CaptureEvery-th frame into anim: at least MinCaptures captures, then more
// until the probe is true again. AdvanceBudget bounds the total run; going
// over it is a session fault.
func (s *Session) Advance(anim *Animation) error {
	s.state = StateAdvancing
	defer func() {
		if s.state == StateAdvancing {
			s.state = StateIdle
		}
	}()

	start := s.frames
	capture := func() error {
		for n := 0; n < s.cfg.CaptureEvery; n++ {
			if err := s.step(); err != nil {
				return err
			}
		}
		f, err := s.console.Frame()
		if err != nil {
			return fmt.Errorf("frame read failed: %w", err)
		}
		return anim.Add(f)
	}

	for n := 0; n < s.cfg.MinCaptures; n++ {
		if err := capture(); err != nil {
			return err
		}
	}
	for {
		ok, err := s.playable()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if s.frames-start >= uint64(s.cfg.AdvanceBudget) {
			return fmt.Errorf("advance still not playable after %d frames: %w",
				s.frames-start, ErrProbeTimeout)
		}
		if err := capture(); err != nil {
			return err
		}
	}

	log.ModSession.InfoZ("advance done").
		Int("captures", anim.Len()).
		Uint64("frames", s.frames-start).
		End()
	return nil
}

// ResetGame hard-resets the console, clears the pad and replays the full
// boot script before going idle again.
func (s *Session) ResetGame() error {
	s.state = StateResetting
	if err := s.console.Reset(); err != nil {
		return fmt.Errorf("console reset failed: %w", err)
	}
	s.pad.Store(0)
	if err := s.bootScript(); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	s.state = StateIdle
	log.ModSession.InfoZ("session reset").Uint64("frames", s.frames).End()
	return nil
}
