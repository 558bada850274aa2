package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mtzanidakis/ghostgate/internal/clock"
	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/gate"
	"github.com/mtzanidakis/ghostgate/internal/lockdown"
	"github.com/mtzanidakis/ghostgate/internal/natsbus"
	"github.com/mtzanidakis/ghostgate/internal/store"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

// core is the set of controllers shared by serve and terminal.
type core struct {
	cfg    *config.Config
	db     *store.Store
	bus    *natsbus.Bus
	client *natsbus.Client

	mixer      *feedback.Mixer
	gate       *gate.Gate
	session    *vault.Session
	scratchpad *vault.Scratchpad
	lockdown   *lockdown.Controller
}

func newCore(cfg *config.Config, withBus bool, sinks ...feedback.Sink) (*core, error) {
	db, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	slog.Info("store initialized", "path", cfg.Store.Path)

	c := &core{cfg: cfg, db: db}

	var pub natsbus.Publisher
	if withBus {
		bus, err := natsbus.New(cfg.NATS)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		client, err := natsbus.NewClient(bus)
		if err != nil {
			bus.Close()
			db.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		slog.Info("nats started", "url", bus.ClientURL())
		c.bus, c.client = bus, client
		pub = client
		sinks = append(sinks, feedback.NewBusSink(client))
	}

	clk := clock.Real()
	c.mixer = feedback.NewMixer(sinks...)
	// The gate flag lives for the process only, like a browser tab.
	c.gate = gate.New(store.NewMemory(), clk, cfg.Gate, c.mixer, pub)
	c.session = vault.NewSession(vault.NewStore(db, cfg.Vault.StorageQuota), clk, cfg.Vault,
		vault.WithGate(c.gate),
		vault.WithCues(c.mixer),
		vault.WithPublisher(pub),
	)
	c.scratchpad = vault.NewScratchpad(c.session, clk, cfg.Scratchpad)
	c.lockdown = lockdown.New(c.session, c.gate, c.mixer, clk, cfg.Lockdown, pub)
	c.lockdown.Register(c.scratchpad)

	return c, nil
}

// reload re-reads the config file and applies what can change without a
// restart.
func (c *core) reload(level *slog.LevelVar) {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}

	d := config.Diff(c.cfg, next)
	for _, field := range d.NonReloadable {
		slog.Warn("config change requires restart", "field", field)
	}
	if !d.HasChanges() {
		slog.Info("config reloaded, nothing to apply")
		return
	}

	if d.VaultChanged {
		c.session.Reconfigure(d.NewVault)
	}
	if d.GateChanged {
		c.gate.Reconfigure(d.NewGate)
	}
	if d.ScratchpadChanged {
		c.scratchpad.Reconfigure(d.NewScratchpad)
	}
	if d.LogLevelChanged && level != nil {
		level.Set(d.NewLog.SlogLevel())
	}

	// Keep the running values for fields that were not applied.
	next.Store, next.NATS, next.Web, next.Lockdown = c.cfg.Store, c.cfg.NATS, c.cfg.Web, c.cfg.Lockdown
	c.cfg = next
	slog.Info("config reloaded",
		"vault", d.VaultChanged,
		"gate", d.GateChanged,
		"scratchpad", d.ScratchpadChanged,
		"log_level", d.LogLevelChanged,
	)
}

func (c *core) Close() {
	c.lockdown.Shutdown()
	c.scratchpad.Cancel()
	c.session.Shutdown()
	c.gate.Shutdown()
	if c.client != nil {
		c.client.Close()
	}
	if c.bus != nil {
		c.bus.Close()
	}
	c.db.Close()
}

func dataDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Store.Path)
}

func dataPath(cfg *config.Config, name string) string {
	return filepath.Join(dataDir(cfg), name)
}

// exportDir is where the terminal and the vault CLI write entry exports.
func exportDir(cfg *config.Config) string {
	return dataPath(cfg, "exports")
}
