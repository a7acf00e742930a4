package config

import (
	"sort"
	"strings"

	logx "slotwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// fields for logging. Tokens are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.url", newCfg.Source.URL),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
			logx.String("source.table_selector", newCfg.Source.TableSelector),
		)
	}

	if oldCfg.Snapshot != newCfg.Snapshot {
		changed = append(changed, "snapshot")
		attrs = append(attrs,
			logx.String("snapshot.driver", newCfg.Snapshot.Driver),
			logx.String("snapshot.path", newCfg.Snapshot.Path),
		)
	}

	on, nn := oldCfg.Notify, newCfg.Notify
	if on != nn {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.transport", nn.Transport),
			logx.Int("notify.max_chars", nn.MaxChars),
			logx.Int("notify.max_items", nn.MaxItems),
			logx.Set("notify.line.token", strings.TrimSpace(nn.Line.Token)),
			logx.Set("notify.telegram.token", strings.TrimSpace(nn.Telegram.Token)),
			logx.Set("notify.nats.url", strings.TrimSpace(nn.NATS.URL)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
			logx.String("schedule.run_timeout", newCfg.Schedule.RunTimeout),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRebuild reports whether settings that require reopening the snapshot
// store or rebuilding the transport differ.
func RequiresRebuild(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return true
	}
	return oldCfg.Source != newCfg.Source || oldCfg.Snapshot != newCfg.Snapshot || oldCfg.Notify != newCfg.Notify
}
