package vault

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/identity"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
	"github.com/mtzanidakis/ghostgate/internal/transform"
)

var (
	ErrLocked         = errors.New("vault is locked")
	ErrViewClosed     = errors.New("vault view is not open")
	ErrAccessDenied   = errors.New("access denied, reload required")
	ErrEntryNotFound  = errors.New("entry not found")
	ErrNotDecryptable = errors.New("entry is not an encryption entry")
)

type State int

const (
	StateLocked State = iota
	StateScanning
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateUnlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sealer reports whether the biometric step has been disabled for the
// rest of the process lifetime.
type Sealer interface {
	Sealed() bool
}

// Close reasons passed to OnClose callbacks.
const (
	CloseUser   = "user"
	CloseIdle   = "idle"
	CloseLocked = "locked"
	CloseWiped  = "wiped"
)

// Session is the vault view controller. The in-memory entry slice is
// authoritative; the Store is written after every change and re-read
// when the view is mounted.
type Session struct {
	mu sync.Mutex

	store *Store
	clk   clock.Clock
	cfg   config.VaultConfig
	gen   *identity.Generator

	gate    Sealer
	cues    feedback.Player
	pub     natsbus.Publisher
	onClose []func(reason string)

	entries  []Entry
	revealed map[string]string
	state    State
	open     bool
	scanned  bool

	scanTimer *clock.Timer
	idleTimer *clock.Timer
	scanGen   uint64
	idleGen   uint64
}

type SessionOption func(*Session)

func WithGate(g Sealer) SessionOption {
	return func(s *Session) { s.gate = g }
}

func WithCues(p feedback.Player) SessionOption {
	return func(s *Session) { s.cues = p }
}

func WithPublisher(p natsbus.Publisher) SessionOption {
	return func(s *Session) { s.pub = p }
}

// WithGenerator replaces the randomly seeded identity generator.
func WithGenerator(g *identity.Generator) SessionOption {
	return func(s *Session) { s.gen = g }
}

func NewSession(st *Store, clk clock.Clock, cfg config.VaultConfig, opts ...SessionOption) *Session {
	s := &Session{
		store:    st,
		clk:      clk,
		cfg:      cfg,
		cues:     feedback.Discard,
		revealed: map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = identity.New(nil)
	}
	s.entries = st.Load()
	return s
}

// OnClose registers fn to run whenever the view closes, with the reason.
func (s *Session) OnClose(fn func(reason string)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Reconfigure applies new scan and idle durations. Running timers keep
// their original deadline.
func (s *Session) Reconfigure(cfg config.VaultConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.store.quota = cfg.StorageQuota
	s.mu.Unlock()
}

// Open mounts the view. Every mount starts locked with nothing revealed
// and one scan available.
func (s *Session) Open() {
	s.mu.Lock()
	s.stopTimersLocked()
	s.entries = s.store.Load()
	s.revealed = map[string]string{}
	s.state = StateLocked
	s.open = true
	s.scanned = false
	n := len(s.entries)
	s.mu.Unlock()

	natsbus.Emit(s.pub, natsbus.TopicVault("opened"), "vault_opened", map[string]any{"entries": n})
}

// Close unmounts the view and cancels every pending timer.
func (s *Session) Close() {
	s.closeWith(CloseUser)
}

// Lock forces the session locked and closes the view. It is what panic
// and Protocol Zero use; it bypasses the idle timer.
func (s *Session) Lock() {
	s.closeWith(CloseLocked)
}

func (s *Session) closeWith(reason string) {
	s.mu.Lock()
	wasOpen, callbacks := s.closeLocked()
	s.mu.Unlock()

	s.notifyClosed(wasOpen, reason, callbacks)
}

func (s *Session) closeLocked() (wasOpen bool, callbacks []func(string)) {
	wasOpen = s.open
	s.stopTimersLocked()
	s.state = StateLocked
	s.open = false
	s.revealed = map[string]string{}
	return wasOpen, slices.Clone(s.onClose)
}

func (s *Session) notifyClosed(wasOpen bool, reason string, callbacks []func(string)) {
	if !wasOpen {
		return
	}
	slog.Debug("vault closed", "reason", reason)
	natsbus.Emit(s.pub, natsbus.TopicVault("closed"), "vault_closed", map[string]string{"reason": reason})
	for _, fn := range callbacks {
		fn(reason)
	}
}

// Scan starts the simulated biometric step. It is a no-op while a scan
// is running or once this mount has already scanned.
func (s *Session) Scan() error {
	s.mu.Lock()
	if s.sealed() {
		s.mu.Unlock()
		return ErrAccessDenied
	}
	if !s.open {
		s.mu.Unlock()
		return ErrViewClosed
	}
	if s.state != StateLocked || s.scanned {
		s.mu.Unlock()
		return nil
	}
	s.state = StateScanning
	s.scanned = true
	s.scanGen++
	gen := s.scanGen
	s.scanTimer = s.clk.AfterFunc(s.cfg.ScanDuration, func() { s.scanDone(gen) })
	s.mu.Unlock()

	s.cues.Play(feedback.CueHaptic)
	natsbus.Emit(s.pub, natsbus.TopicVault("scanning"), "vault_scanning", nil)
	return nil
}

func (s *Session) scanDone(gen uint64) {
	s.mu.Lock()
	if gen != s.scanGen || s.state != StateScanning {
		s.mu.Unlock()
		return
	}
	if s.sealed() {
		s.scanTimer = nil
		s.state = StateLocked
		s.mu.Unlock()
		return
	}
	s.scanTimer = nil
	s.state = StateUnlocked
	s.armIdleLocked()
	s.mu.Unlock()

	s.cues.Play(feedback.CueAccessGranted)
	natsbus.Emit(s.pub, natsbus.TopicVault("unlocked"), "vault_unlocked", nil)
}

// Touch records an interaction with the unlocked view.
func (s *Session) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return ErrLocked
	}
	s.armIdleLocked()
	return nil
}

func (s *Session) armIdleLocked() {
	s.idleTimer.Stop()
	s.idleGen++
	gen := s.idleGen
	s.idleTimer = s.clk.AfterFunc(s.cfg.IdleTimeout, func() { s.idleExpired(gen) })
}

func (s *Session) idleExpired(gen uint64) {
	s.mu.Lock()
	if gen != s.idleGen || s.state != StateUnlocked {
		s.mu.Unlock()
		return
	}
	wasOpen, callbacks := s.closeLocked()
	s.mu.Unlock()

	slog.Info("vault auto-locked after inactivity")
	s.notifyClosed(wasOpen, CloseIdle, callbacks)
}

func (s *Session) stopTimersLocked() {
	s.scanTimer.Stop()
	s.idleTimer.Stop()
	s.scanTimer, s.idleTimer = nil, nil
	s.scanGen++
	s.idleGen++
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Unlocked() bool {
	return s.State() == StateUnlocked
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Decrypt reveals an encryption entry in the view. The stored entry is
// untouched; the result lives until the view closes or another entry is
// decrypted.
func (s *Session) Decrypt(id, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return "", ErrLocked
	}
	entry := s.findLocked(id)
	if entry == nil {
		return "", ErrEntryNotFound
	}

	var text string
	switch e := entry.(type) {
	case *EncryptionEntry:
		text = transform.Decode(e.EncryptedBase64, key)
	case *IdentityEntry:
		return "", ErrNotDecryptable
	default:
		return "", ErrEntryNotFound
	}
	s.revealed = map[string]string{id: text}
	s.armIdleLocked()
	return text, nil
}

// Export renders an entry for download. Encryption entries always
// export their stored form, even after Decrypt.
func (s *Session) Export(id string) (Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return Export{}, ErrLocked
	}
	entry := s.findLocked(id)
	if entry == nil {
		return Export{}, ErrEntryNotFound
	}
	exp, err := BuildExport(entry)
	if err != nil {
		return Export{}, err
	}
	s.armIdleLocked()
	return exp, nil
}

func (s *Session) findLocked(id string) Entry {
	for _, e := range s.entries {
		if e.EntryID() == id {
			return e
		}
	}
	return nil
}

// Encrypt transforms message with key and stores the result. It
// returns the representation shown to the user; when the key is
// missing that is the sentinel and nothing is stored.
func (s *Session) Encrypt(message, key string) (string, *EncryptionEntry, error) {
	if s.gate != nil && s.gate.Sealed() {
		return "", nil, ErrAccessDenied
	}
	out := transform.Encode(message, key)
	if transform.IsSentinel(out) {
		return out, nil, nil
	}

	s.mu.Lock()
	if s.sealed() {
		s.mu.Unlock()
		return "", nil, ErrAccessDenied
	}
	entry := &EncryptionEntry{
		ID:              uuid.NewString(),
		CreatedAt:       s.nowLocked(),
		EncryptedBase64: out,
	}
	s.appendLocked(entry)
	s.mu.Unlock()

	natsbus.Emit(s.pub, natsbus.TopicVault("entry_added"), "entry_added", map[string]any{
		"id": entry.ID, "type": KindEncryption,
	})
	return out, entry, nil
}

// GenerateIdentity creates and stores a synthetic identity.
func (s *Session) GenerateIdentity() (*IdentityEntry, error) {
	s.mu.Lock()
	if s.sealed() {
		s.mu.Unlock()
		return nil, ErrAccessDenied
	}
	id := s.gen.Generate()
	entry := &IdentityEntry{
		ID:        uuid.NewString(),
		CreatedAt: s.nowLocked(),
		Name:      id.Name,
		Email:     id.Email,
		Location:  id.Location,
	}
	s.appendLocked(entry)
	s.mu.Unlock()

	natsbus.Emit(s.pub, natsbus.TopicVault("entry_added"), "entry_added", map[string]any{
		"id": entry.ID, "type": KindIdentity,
	})
	return entry, nil
}

// sealed is checked under s.mu so that a seal followed by Purge leaves
// no entry or scan behind.
func (s *Session) sealed() bool {
	return s.gate != nil && s.gate.Sealed()
}

func (s *Session) nowLocked() time.Time {
	return time.UnixMilli(s.clk.Now().UnixMilli())
}

func (s *Session) appendLocked(entry Entry) {
	s.entries = append(s.entries, entry)
	s.store.Save(s.entries)
	if s.state == StateUnlocked {
		s.armIdleLocked()
	}
}

// WipeAll deletes every entry, then locks and closes the view.
func (s *Session) WipeAll() error {
	s.mu.Lock()
	if s.state != StateUnlocked {
		s.mu.Unlock()
		return ErrLocked
	}
	s.mu.Unlock()

	s.Purge()
	s.closeWith(CloseWiped)
	return nil
}

// Purge empties the store and the in-memory copy regardless of state.
func (s *Session) Purge() {
	s.mu.Lock()
	s.store.WipeAll()
	s.entries = []Entry{}
	s.revealed = map[string]string{}
	s.mu.Unlock()

	natsbus.Emit(s.pub, natsbus.TopicVault("wiped"), "vault_wiped", nil)
}

// Rows is the list view, newest first. Rows are available only while
// unlocked.
func (s *Session) Rows() ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return nil, ErrLocked
	}
	return s.rowsLocked(), nil
}

func (s *Session) rowsLocked() []Row {
	rows := make([]Row, 0, len(s.entries))
	for _, e := range s.entries {
		rows = append(rows, newRow(e, s.revealed))
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
	return rows
}

// Snapshot is what the dashboard polls.
type Snapshot struct {
	State   State `json:"state"`
	Open    bool  `json:"open"`
	Count   int   `json:"count"`
	Usage   Usage `json:"usage"`
	Entries []Row `json:"entries,omitempty"`
}

// Snapshot returns the current view. Entry rows are included only while
// unlocked.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State: s.state,
		Open:  s.open,
		Count: len(s.entries),
		Usage: s.store.Usage(s.entries),
	}
	if s.state == StateUnlocked {
		snap.Entries = s.rowsLocked()
	}
	return snap
}

// Entries returns a copy of the in-memory sequence in stored order.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Shutdown cancels pending timers without firing close callbacks.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.stopTimersLocked()
	s.state = StateLocked
	s.open = false
	s.mu.Unlock()
}
