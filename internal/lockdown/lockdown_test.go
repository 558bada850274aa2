package lockdown

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/gate"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

type recordingSink struct {
	mu   sync.Mutex
	cues []feedback.Cue
}

func (r *recordingSink) Play(c feedback.Cue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, c)
	return nil
}

func (r *recordingSink) played() []feedback.Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.cues)
}

type fixture struct {
	ctl     *Controller
	clk     *clock.FakeClock
	session *vault.Session
	store   *vault.Store
	gate    *gate.Gate
	pad     *vault.Scratchpad
	mixer   *feedback.Mixer
	sink    *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Defaults()
	f := &fixture{clk: clock.Fake(time.Unix(1700000000, 0)), sink: &recordingSink{}}
	f.mixer = feedback.NewMixer(f.sink)
	f.store = vault.NewStore(store.NewMemory(), cfg.Vault.StorageQuota)
	f.gate = gate.New(store.NewMemory(), f.clk, cfg.Gate, f.mixer, nil)
	f.session = vault.NewSession(f.store, f.clk, cfg.Vault,
		vault.WithGate(f.gate), vault.WithCues(f.mixer))
	f.pad = vault.NewScratchpad(f.session, f.clk, cfg.Scratchpad)
	f.ctl = New(f.session, f.gate, f.mixer, f.clk, cfg.Lockdown, nil)
	f.ctl.Register(f.pad)

	t.Cleanup(func() {
		f.ctl.Shutdown()
		f.session.Shutdown()
		f.gate.Shutdown()
	})
	return f
}

func (f *fixture) unlock(t *testing.T) {
	t.Helper()
	f.session.Open()
	if err := f.session.Scan(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	f.clk.Advance(2 * time.Second)
	if !f.session.Unlocked() {
		t.Fatal("vault did not unlock")
	}
}

func TestPanic(t *testing.T) {
	f := newFixture(t)
	_, _ = f.pad.Encrypt("hello", "k", true)
	f.unlock(t)

	f.ctl.Panic()

	st := f.ctl.Status()
	if !st.Panic || !st.Muted {
		t.Fatalf("unexpected status %+v", st)
	}
	if f.session.State() != vault.StateLocked {
		t.Error("panic should lock the vault")
	}
	if got := f.pad.State(); got.Countdown != 0 || got.Output == vault.Deleted {
		t.Errorf("self-destruct not cancelled cleanly: %+v", got)
	}
	if n := len(f.store.Load()); n != 1 {
		t.Errorf("panic must not delete data, got %d entries", n)
	}

	cues := f.sink.played()
	if cues[len(cues)-1] != feedback.CueHaptic {
		t.Errorf("last cue before mute should be haptic, got %v", cues)
	}
	f.mixer.Play(feedback.CueClick)
	if slices.Contains(f.sink.played(), feedback.CueClick) {
		t.Error("cue played while muted")
	}
}

func TestResetKeepsMute(t *testing.T) {
	f := newFixture(t)
	if f.ctl.Reset() {
		t.Fatal("reset without panic should report false")
	}
	f.ctl.Panic()
	if !f.ctl.Reset() {
		t.Fatal("reset after panic should report true")
	}
	st := f.ctl.Status()
	if st.Panic {
		t.Error("panic still on after reset")
	}
	if !st.Muted {
		t.Error("mute should survive reset")
	}
}

func TestProtocolZeroPreconditions(t *testing.T) {
	f := newFixture(t)

	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); !errors.Is(err, ErrVaultLocked) {
		t.Fatalf("locked vault: %v", err)
	}
	f.unlock(t)
	for _, phrase := range []string{"", "protocol zero", "yes"} {
		if err := f.ctl.InitiateProtocolZero(phrase); !errors.Is(err, ErrConfirmationRequired) {
			t.Errorf("phrase %q: %v", phrase, err)
		}
	}
	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); !errors.Is(err, ErrProtocolZeroActive) {
		t.Errorf("second start: %v", err)
	}
}

func TestProtocolZeroCountdown(t *testing.T) {
	f := newFixture(t)
	_, _, _ = f.session.Encrypt("hello", "k")
	_, _ = f.session.GenerateIdentity()
	f.unlock(t)

	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); err != nil {
		t.Fatal(err)
	}
	for want := 5; want > 0; want-- {
		st := f.ctl.Status()
		if st.ProtocolZero != ZeroCountingDown || st.Remaining != want {
			t.Fatalf("expected %d remaining, got %+v", want, st)
		}
		if n := len(f.store.Load()); n != 2 {
			t.Fatalf("wiped early at %d", want)
		}
		f.clk.Advance(time.Second)
	}

	st := f.ctl.Status()
	if st.ProtocolZero != ZeroDone || st.Remaining != 0 {
		t.Fatalf("expected done, got %+v", st)
	}
	if n := len(f.store.Load()); n != 0 {
		t.Errorf("store not empty: %d entries", n)
	}
	if f.session.State() != vault.StateLocked {
		t.Error("session not locked")
	}
	if !f.gate.Sealed() || f.gate.Passed() {
		t.Error("gate not sealed")
	}
	if !slices.Contains(f.sink.played(), feedback.CueShutdown) {
		t.Error("shutdown cue not played")
	}
}

func TestProtocolZeroTerminal(t *testing.T) {
	f := newFixture(t)
	f.unlock(t)
	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); err != nil {
		t.Fatal(err)
	}

	// Neither panic nor closing the view stops the countdown.
	f.ctl.Panic()
	f.session.Close()
	f.clk.Advance(5 * time.Second)

	f.session.Open()
	if err := f.session.Scan(); !errors.Is(err, vault.ErrAccessDenied) {
		t.Fatalf("scan after protocol zero: %v", err)
	}
	if err := f.gate.Scan(); !errors.Is(err, vault.ErrAccessDenied) {
		t.Fatalf("gate scan after protocol zero: %v", err)
	}
	if got := f.store.Load(); len(got) != 0 {
		t.Errorf("load after protocol zero returned %d entries", len(got))
	}
	if err := f.ctl.InitiateProtocolZero(ConfirmPhrase); !errors.Is(err, ErrVaultLocked) {
		t.Errorf("restart after done: %v", err)
	}

	f.clk.Advance(time.Hour)
	if f.session.State() != vault.StateLocked {
		t.Error("session left locked state")
	}
}

// racingVault issues a dashboard request while the wipe is in progress.
type racingVault struct {
	*vault.Session
	errs []error
}

func (v *racingVault) request() {
	v.Session.Open()
	_, _, err := v.Session.Encrypt("survivor", "k")
	v.errs = append(v.errs, err, v.Session.Scan())
}

func (v *racingVault) Purge() {
	v.request()
	v.Session.Purge()
}

func (v *racingVault) Lock() {
	v.Session.Lock()
	v.request()
}

func TestProtocolZeroSealsBeforeWipe(t *testing.T) {
	f := newFixture(t)
	rv := &racingVault{Session: f.session}
	ctl := New(rv, f.gate, f.mixer, f.clk, config.Defaults().Lockdown, nil)
	t.Cleanup(ctl.Shutdown)

	f.unlock(t)
	if err := ctl.InitiateProtocolZero(ConfirmPhrase); err != nil {
		t.Fatal(err)
	}
	f.clk.Advance(5 * time.Second)

	if got := ctl.Status().ProtocolZero; got != ZeroDone {
		t.Fatalf("zero state = %s", got)
	}
	if len(rv.errs) != 4 {
		t.Fatalf("expected two racing requests, got %d results", len(rv.errs))
	}
	for i, err := range rv.errs {
		if !errors.Is(err, vault.ErrAccessDenied) {
			t.Errorf("request %d: expected access denied, got %v", i, err)
		}
	}
	if n := len(f.store.Load()); n != 0 {
		t.Errorf("entries survived the wipe: %d", n)
	}

	f.clk.Advance(5 * time.Second)
	if f.session.State() != vault.StateLocked {
		t.Errorf("vault left locked after wipe: %s", f.session.State())
	}
}
