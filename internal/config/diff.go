package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// is applied live; every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections (e.g., "bot", "storage")
	// whose changes take effect only after a restart, in schema order.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"bot", old.Bot, new.Bot},
		{"telegram", old.Telegram, new.Telegram},
		{"discord", old.Discord, new.Discord},
		{"storage", old.Storage, new.Storage},
		{"providers", old.Providers, new.Providers},
		{"history", old.History, new.History},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
