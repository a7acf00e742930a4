package config

// Config is the whole watcher configuration.
//
// All durations are Go duration strings (e.g. "500ms", "20s", "1m").
// Every field is optional in the file; defaults are filled by Normalize and
// a few fields can come from the environment (see ApplyEnv).
type Config struct {
	Source   SourceConfig   `json:"source"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Notify   NotifyConfig   `json:"notify"`
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
}

// SourceConfig describes the watched page.
//
// Defaults:
//   - timeout: "20s"
//   - max_bytes: 10 MiB
//   - table_selector: "#listtable"
//   - closed_marker: "×"
type SourceConfig struct {
	URL           string `json:"url"`
	Timeout       string `json:"timeout,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	MaxBytes      int64  `json:"max_bytes,omitempty"`
	TableSelector string `json:"table_selector,omitempty"`
	ClosedMarker  string `json:"closed_marker,omitempty"`
}

// SnapshotConfig controls where the previous page is kept.
//
// Example:
//
//	"snapshot": { "driver": "sqlite", "path": "./slotwatch.db" }
type SnapshotConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) | "sqlite"
	Path        string `json:"path,omitempty"`   // default: "prev.html"
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotifyConfig controls message packing and delivery.
//
// Defaults:
//   - transport: "line"
//   - header: "📅 新規枠が追加されました"
//   - max_chars: 4700
//   - max_items: transport ceiling (5 for LINE)
//   - timeout: "20s"
type NotifyConfig struct {
	Transport  string  `json:"transport,omitempty"` // "line" | "telegram" | "nats" | "log"
	Header     string  `json:"header,omitempty"`
	MaxChars   int     `json:"max_chars,omitempty"`
	MaxItems   int     `json:"max_items,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`

	Line     LineConfig     `json:"line"`
	Telegram TelegramConfig `json:"telegram"`
	NATS     NATSConfig     `json:"nats"`
}

type LineConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	Endpoint string `json:"endpoint,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ScheduleConfig drives watch mode.
//
// Spec accepts cron ("*/10 * * * *", "@hourly", "@every 5m"), a Go duration
// ("10m") or HH:MM ("00:10"). Timezone is an IANA name; empty means local.
type ScheduleConfig struct {
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
	// RunTimeout bounds one scheduled run; empty means no limit.
	RunTimeout string `json:"run_timeout,omitempty"`
}
