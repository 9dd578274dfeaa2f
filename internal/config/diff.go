package config

// ConfigDiff describes what changed between two loaded configs. Only the
// sweep settings can be applied to a running engine; everything else is
// reported so the operator knows a restart is needed.
type ConfigDiff struct {
	SweepChanged bool
	NewSweep     SweepConfig

	// Non-reloadable settings that changed (warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable setting changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.SweepChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	// Sweep schedule and retention apply live; enabling or disabling the
	// sweeper does not.
	if old.Sweep.Enabled != new.Sweep.Enabled {
		d.NonReloadable = append(d.NonReloadable, "sweep.enabled")
	} else if old.Sweep != new.Sweep {
		d.SweepChanged = true
		d.NewSweep = new.Sweep
	}

	if old.Gateway != new.Gateway {
		d.NonReloadable = append(d.NonReloadable, "gateway")
	}
	if old.Extract != new.Extract {
		d.NonReloadable = append(d.NonReloadable, "extract")
	}
	if old.Agents != new.Agents {
		d.NonReloadable = append(d.NonReloadable, "agents.idle_delay")
	}
	if old.NATS != new.NATS {
		d.NonReloadable = append(d.NonReloadable, "nats")
	}
	if old.Store != new.Store {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Web != new.Web {
		d.NonReloadable = append(d.NonReloadable, "web")
	}

	return d
}
