package vault

import (
	"sync"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
	"github.com/mtzanidakis/ghostgate/internal/transform"
)

// Deleted replaces the scratchpad output when a self-destruct countdown
// runs out.
const Deleted = "[DELETED]"

// Scratchpad is the quick encrypt/decrypt panel. Encrypting stores the
// result in the vault and can arm a per-second self-destruct countdown
// that burns the visible output.
type Scratchpad struct {
	mu      sync.Mutex
	session *Session
	clk     clock.Clock
	seconds int

	output    string
	countdown int
	timer     *clock.Timer
	gen       uint64
}

// ScratchpadState is the panel as displayed. Countdown is zero when no
// self-destruct is pending.
type ScratchpadState struct {
	Output    string `json:"output"`
	Countdown int    `json:"countdown"`
}

func NewScratchpad(session *Session, clk clock.Clock, cfg config.ScratchpadConfig) *Scratchpad {
	return &Scratchpad{session: session, clk: clk, seconds: cfg.SelfDestruct}
}

func (p *Scratchpad) Reconfigure(cfg config.ScratchpadConfig) {
	p.mu.Lock()
	p.seconds = cfg.SelfDestruct
	p.mu.Unlock()
}

// Encrypt replaces the output with the transform of message and stores
// it in the vault. Any running countdown is cancelled first.
func (p *Scratchpad) Encrypt(message, key string, selfDestruct bool) (ScratchpadState, error) {
	p.Cancel()

	out, _, err := p.session.Encrypt(message, key)
	if err != nil {
		return ScratchpadState{}, err
	}

	p.mu.Lock()
	p.output = out
	if selfDestruct {
		p.countdown = p.seconds
		p.gen++
		gen := p.gen
		p.timer = p.clk.AfterFunc(time.Second, func() { p.tick(gen) })
	}
	st := p.stateLocked()
	p.mu.Unlock()

	if selfDestruct {
		natsbus.Emit(p.session.pub, natsbus.TopicScratchpad("countdown"), "self_destruct", st)
	}
	return st, nil
}

// Decrypt shows the decoded message. It does not stop a running
// countdown, which will still burn the output.
func (p *Scratchpad) Decrypt(message, key string) ScratchpadState {
	text := transform.Decode(message, key)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = text
	return p.stateLocked()
}

func (p *Scratchpad) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.countdown == 0 {
		p.mu.Unlock()
		return
	}
	p.countdown--
	burned := p.countdown == 0
	if burned {
		p.output = Deleted
		p.timer = nil
	} else {
		p.timer = p.clk.AfterFunc(time.Second, func() { p.tick(gen) })
	}
	st := p.stateLocked()
	p.mu.Unlock()

	if burned {
		p.session.cues.Play(feedback.CueBurn)
		natsbus.Emit(p.session.pub, natsbus.TopicScratchpad("burned"), "output_burned", st)
		return
	}
	natsbus.Emit(p.session.pub, natsbus.TopicScratchpad("countdown"), "self_destruct", st)
}

// Cancel stops a pending countdown and leaves the output as is.
func (p *Scratchpad) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timer.Stop()
	p.timer = nil
	p.countdown = 0
	p.gen++
}

func (p *Scratchpad) State() ScratchpadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Scratchpad) stateLocked() ScratchpadState {
	return ScratchpadState{Output: p.output, Countdown: p.countdown}
}
