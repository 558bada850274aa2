// Package lockdown implements the two evasive controls: panic, which
// hides the dashboard behind a decoy and silences it, and Protocol
// Zero, an uncancellable countdown that wipes the vault and seals the
// biometric gate until restart.
package lockdown

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
)

// ConfirmPhrase must be typed to start Protocol Zero.
const ConfirmPhrase = "PROTOCOL ZERO"

var (
	ErrVaultLocked          = errors.New("protocol zero requires an unlocked vault")
	ErrConfirmationRequired = errors.New("confirmation phrase required")
	ErrProtocolZeroActive   = errors.New("protocol zero already started")
)

// Vault is the session controller as seen from here.
type Vault interface {
	Unlocked() bool
	Lock()
	Purge()
}

type Sealer interface {
	Seal()
}

// Canceller is a countdown that panic stops without touching its data.
type Canceller interface {
	Cancel()
}

// Muter is the feedback mixer.
type Muter interface {
	feedback.Player
	Mute()
	Muted() bool
}

type ZeroState int

const (
	ZeroInactive ZeroState = iota
	ZeroCountingDown
	ZeroDone
)

func (z ZeroState) String() string {
	switch z {
	case ZeroCountingDown:
		return "counting_down"
	case ZeroDone:
		return "done"
	default:
		return "inactive"
	}
}

func (z ZeroState) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *ZeroState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "inactive":
		*z = ZeroInactive
	case "counting_down":
		*z = ZeroCountingDown
	case "done":
		*z = ZeroDone
	default:
		return fmt.Errorf("unknown protocol zero state %q", b)
	}
	return nil
}

type Status struct {
	Panic        bool      `json:"panic"`
	ProtocolZero ZeroState `json:"protocol_zero"`
	Remaining    int       `json:"remaining"`
	Muted        bool      `json:"muted"`
}

type Controller struct {
	mu    sync.Mutex
	vault Vault
	gate  Sealer
	mixer Muter
	clk   clock.Clock
	pub   natsbus.Publisher
	from  int

	cancellers []Canceller

	panic     bool
	zero      ZeroState
	remaining int
	timer     *clock.Timer
	gen       uint64
}

func New(v Vault, g Sealer, m Muter, clk clock.Clock, cfg config.LockdownConfig, pub natsbus.Publisher) *Controller {
	return &Controller{vault: v, gate: g, mixer: m, clk: clk, pub: pub, from: cfg.Countdown}
}

// Register adds a countdown to stop on panic.
func (c *Controller) Register(cn Canceller) {
	c.mu.Lock()
	c.cancellers = append(c.cancellers, cn)
	c.mu.Unlock()
}

// Panic switches to the decoy. The haptic cue fires before muting, so
// it is the last cue until the user unmutes.
func (c *Controller) Panic() {
	c.mixer.Play(feedback.CueHaptic)
	c.mixer.Mute()

	c.mu.Lock()
	c.panic = true
	cancellers := slices.Clone(c.cancellers)
	c.mu.Unlock()

	for _, cn := range cancellers {
		cn.Cancel()
	}
	c.vault.Lock()

	slog.Info("panic mode engaged")
	natsbus.Emit(c.pub, natsbus.TopicLockdown("panic"), "panic", c.Status())
}

// Reset leaves panic mode. It reports false when panic was not on.
// Mute is left as is.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	was := c.panic
	c.panic = false
	c.mu.Unlock()

	if !was {
		return false
	}
	slog.Info("panic mode cleared")
	natsbus.Emit(c.pub, natsbus.TopicLockdown("restore"), "restore", c.Status())
	return true
}

func (c *Controller) Panicked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panic
}

// InitiateProtocolZero starts the countdown. It cannot be stopped once
// running.
func (c *Controller) InitiateProtocolZero(confirmation string) error {
	if confirmation != ConfirmPhrase {
		return ErrConfirmationRequired
	}
	if !c.vault.Unlocked() {
		return ErrVaultLocked
	}

	c.mu.Lock()
	if c.zero != ZeroInactive {
		c.mu.Unlock()
		return ErrProtocolZeroActive
	}
	c.zero = ZeroCountingDown
	c.remaining = c.from
	c.gen++
	gen := c.gen
	c.timer = c.clk.AfterFunc(time.Second, func() { c.tick(gen) })
	c.mu.Unlock()

	slog.Warn("protocol zero initiated", "seconds", c.from)
	natsbus.Emit(c.pub, natsbus.TopicLockdown("countdown"), "protocol_zero_countdown", c.Status())
	return nil
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.zero != ZeroCountingDown {
		c.mu.Unlock()
		return
	}
	c.remaining--
	if c.remaining > 0 {
		c.timer = c.clk.AfterFunc(time.Second, func() { c.tick(gen) })
		c.mu.Unlock()
		natsbus.Emit(c.pub, natsbus.TopicLockdown("countdown"), "protocol_zero_countdown", c.Status())
		return
	}
	c.timer = nil
	c.zero = ZeroDone
	c.mu.Unlock()

	c.complete()
}

// complete seals the gate before wiping, so nothing started during the
// wipe can add an entry or unlock the vault again.
func (c *Controller) complete() {
	c.gate.Seal()
	c.vault.Purge()
	c.vault.Lock()
	c.mixer.Play(feedback.CueShutdown)

	slog.Warn("protocol zero complete, vault wiped")
	natsbus.Emit(c.pub, natsbus.TopicLockdown("done"), "protocol_zero_done", c.Status())
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Panic:        c.panic,
		ProtocolZero: c.zero,
		Remaining:    c.remaining,
		Muted:        c.mixer.Muted(),
	}
}

// Shutdown stops a running countdown on process exit. The wipe does
// not happen.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer.Stop()
	c.timer = nil
	c.gen++
}
