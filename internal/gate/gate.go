// Package gate implements the biometric entry overlay shown before the
// dashboard. Passing it sets a flag that lives only as long as the
// process; Protocol Zero seals it until restart.
package gate

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

// SessionKey holds "1" once the overlay scan has completed.
const SessionKey = "ghostgate_biometric_passed"

type Gate struct {
	mu       sync.Mutex
	kv       store.KV
	clk      clock.Clock
	duration time.Duration
	cues     feedback.Player
	pub      natsbus.Publisher

	sealed   atomic.Bool
	scanning bool
	timer    *clock.Timer
	gen      uint64
}

// Status is the overlay as the dashboard renders it.
type Status struct {
	Passed   bool `json:"passed"`
	Scanning bool `json:"scanning"`
	Sealed   bool `json:"sealed"`
}

var _ vault.Sealer = (*Gate)(nil)

// New returns a Gate over kv, which must be session scoped (a
// store.Memory in practice). cues and pub may be nil.
func New(kv store.KV, clk clock.Clock, cfg config.GateConfig, cues feedback.Player, pub natsbus.Publisher) *Gate {
	if cues == nil {
		cues = feedback.Discard
	}
	return &Gate{kv: kv, clk: clk, duration: cfg.ScanDuration, cues: cues, pub: pub}
}

func (g *Gate) Reconfigure(cfg config.GateConfig) {
	g.mu.Lock()
	g.duration = cfg.ScanDuration
	g.mu.Unlock()
}

func (g *Gate) Passed() bool {
	if g.Sealed() {
		return false
	}
	v, ok, err := g.kv.Get(SessionKey)
	if err != nil {
		slog.Debug("gate flag unreadable", "error", err)
		return false
	}
	return ok && v == "1"
}

// Scan starts the overlay scan. Once sealed it returns
// vault.ErrAccessDenied; a scan already running or passed is a no-op.
func (g *Gate) Scan() error {
	if g.Sealed() {
		return vault.ErrAccessDenied
	}
	if g.Passed() {
		return nil
	}

	g.mu.Lock()
	if g.scanning {
		g.mu.Unlock()
		return nil
	}
	g.scanning = true
	g.gen++
	gen := g.gen
	g.timer = g.clk.AfterFunc(g.duration, func() { g.scanDone(gen) })
	g.mu.Unlock()

	g.cues.Play(feedback.CueHaptic)
	natsbus.Emit(g.pub, natsbus.TopicGate("scanning"), "gate_scanning", nil)
	return nil
}

func (g *Gate) scanDone(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || !g.scanning {
		g.mu.Unlock()
		return
	}
	g.scanning = false
	g.timer = nil
	g.mu.Unlock()

	// Seal may have won the race between the timer firing and here.
	if g.Sealed() {
		return
	}
	if err := g.kv.Set(SessionKey, "1"); err != nil {
		slog.Debug("gate flag not stored", "error", err)
	}
	g.cues.Play(feedback.CueAccessGranted)
	natsbus.Emit(g.pub, natsbus.TopicGate("passed"), "gate_passed", nil)
}

// Seal clears the passed flag and rejects every later scan.
func (g *Gate) Seal() {
	g.mu.Lock()
	g.timer.Stop()
	g.timer = nil
	g.scanning = false
	g.gen++
	g.sealed.Store(true)
	g.mu.Unlock()

	if err := g.kv.Delete(SessionKey); err != nil {
		slog.Debug("gate flag not cleared", "error", err)
	}
	slog.Warn("biometric gate sealed until restart")
	natsbus.Emit(g.pub, natsbus.TopicGate("sealed"), "gate_sealed", nil)
}

func (g *Gate) Sealed() bool {
	return g.sealed.Load()
}

func (g *Gate) Status() Status {
	g.mu.Lock()
	scanning := g.scanning
	g.mu.Unlock()
	return Status{Passed: g.Passed(), Scanning: scanning, Sealed: g.Sealed()}
}

// Shutdown cancels a running scan.
func (g *Gate) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timer.Stop()
	g.timer = nil
	g.scanning = false
	g.gen++
}
