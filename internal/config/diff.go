package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	VaultChanged bool
	NewVault     VaultConfig

	GateChanged bool
	NewGate     GateConfig

	ScratchpadChanged bool
	NewScratchpad     ScratchpadConfig

	LogLevelChanged bool
	NewLog          LogConfig

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.VaultChanged ||
		d.GateChanged ||
		d.ScratchpadChanged ||
		d.LogLevelChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Vault != new.Vault {
		d.VaultChanged = true
		d.NewVault = new.Vault
	}
	if old.Gate != new.Gate {
		d.GateChanged = true
		d.NewGate = new.Gate
	}
	if old.Scratchpad != new.Scratchpad {
		d.ScratchpadChanged = true
		d.NewScratchpad = new.Scratchpad
	}
	if old.Log.SlogLevel() != new.Log.SlogLevel() {
		d.LogLevelChanged = true
		d.NewLog = new.Log
	}

	// A running countdown keeps the length it started with.
	if old.Lockdown != new.Lockdown {
		d.NonReloadable = append(d.NonReloadable, "lockdown.countdown")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.Web.Auth != new.Web.Auth {
		d.NonReloadable = append(d.NonReloadable, "web.auth")
	}
	if old.NATS.Port != new.NATS.Port {
		d.NonReloadable = append(d.NonReloadable, "nats.port")
	}
	if old.NATS.DataDir != new.NATS.DataDir {
		d.NonReloadable = append(d.NonReloadable, "nats.data_dir")
	}

	return d
}
