package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"fed-monitor/internal/logging"
	"fed-monitor/internal/rules"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	FRED     FREDConfig     `mapstructure:"fred"`
	Series   []SeriesDef    `mapstructure:"series"`
	Derived  []DerivedDef   `mapstructure:"derived"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Alerts   []AlertRuleDef `mapstructure:"alerts"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Panel    PanelConfig    `mapstructure:"panel"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FREDConfig covers access to the FRED observations API.
type FREDConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// SeriesDef describes one raw input series.
type SeriesDef struct {
	Key      string `mapstructure:"key"`
	SeriesID string `mapstructure:"series_id"`
	Label    string `mapstructure:"label"`
	Unit     string `mapstructure:"unit"`
}

// DerivedDef describes a computed indicator built from raw series columns.
type DerivedDef struct {
	Key   string `mapstructure:"key"`
	Expr  string `mapstructure:"expr"`
	Label string `mapstructure:"label"`
	Unit  string `mapstructure:"unit"`
}

// Change statistic kinds.
const (
	ChangeDiff = "diff"
	ChangePct  = "pct_change"
)

// Rolling statistic kinds.
const (
	RollingMean = "moving_average"
	RollingStd  = "moving_std"
	RollingZ    = "zscore"
)

// ChangeDef describes a period-over-period change statistic.
type ChangeDef struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	Periods int    `mapstructure:"periods"`
}

// RollingDef describes a windowed statistic.
type RollingDef struct {
	Name   string `mapstructure:"name"`
	Kind   string `mapstructure:"kind"`
	Window int    `mapstructure:"window"`
}

// MetricsConfig groups the configured statistics.
type MetricsConfig struct {
	Changes []ChangeDef  `mapstructure:"changes"`
	Rolling []RollingDef `mapstructure:"rolling"`
}

// StatNames returns the suffix of every configured change and rolling statistic.
func (m MetricsConfig) StatNames() []string {
	names := make([]string, 0, len(m.Changes)+len(m.Rolling))
	for _, c := range m.Changes {
		names = append(names, c.Name)
	}
	for _, r := range m.Rolling {
		names = append(names, r.Name)
	}
	return names
}

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// AlertRuleDef describes one configured alert.
type AlertRuleDef struct {
	Key      string `mapstructure:"key"`
	Rule     string `mapstructure:"rule"`
	Severity string `mapstructure:"severity"`
	Note     string `mapstructure:"note"`
	Category string `mapstructure:"category"`
}

// AlertingConfig defines notification routing and suppression.
type AlertingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	NotifySeverities []string       `mapstructure:"notify_severities"`
	Cooldown         time.Duration  `mapstructure:"cooldown"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ScheduleConfig governs job cadence.
type ScheduleConfig struct {
	FetchInterval   time.Duration `mapstructure:"fetch_interval"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	SummaryInterval time.Duration `mapstructure:"summary_interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ChartDef describes one dashboard chart.
type ChartDef struct {
	Title  string   `mapstructure:"title"`
	Series []string `mapstructure:"series"`
	YLabel string   `mapstructure:"y_label"`
}

// TableDef describes one dashboard table.
type TableDef struct {
	Title   string   `mapstructure:"title"`
	Series  []string `mapstructure:"series"`
	Columns []string `mapstructure:"columns"`
}

// PanelConfig describes the dashboard layout consumed by export.
type PanelConfig struct {
	Charts []ChartDef `mapstructure:"charts"`
	Tables []TableDef `mapstructure:"tables"`
}

// ExportConfig sets export behaviour.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Days      int    `mapstructure:"days"`
	MaxPoints int    `mapstructure:"max_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEDMONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fedmonitor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("fred.requests_per_minute", 100)
	v.SetDefault("fred.request_timeout", "30s")
	v.SetDefault("fred.user_agent", "fedmonitor/1.0")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.notify_severities", []string{SeverityCritical})
	v.SetDefault("alerting.cooldown", "0s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("schedule.fetch_interval", "24h")
	v.SetDefault("schedule.check_interval", "30m")
	v.SetDefault("schedule.summary_interval", "24h")
	v.SetDefault("schedule.align_to_bucket", true)
	v.SetDefault("schedule.advisory_lock_key", int64(0x46454453))
	v.SetDefault("schedule.startup_delay", "0s")

	v.SetDefault("export.output_dir", "dashboard/data")
	v.SetDefault("export.days", 365)
	v.SetDefault("export.max_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// SeriesKeys lists all raw series keys in configured order.
func (c *Config) SeriesKeys() []string {
	keys := make([]string, 0, len(c.Series))
	for _, s := range c.Series {
		keys = append(keys, s.Key)
	}
	return keys
}

// DerivedKeys lists all derived metric keys in configured order.
func (c *Config) DerivedKeys() []string {
	keys := make([]string, 0, len(c.Derived))
	for _, d := range c.Derived {
		keys = append(keys, d.Key)
	}
	return keys
}

// MetricKeys lists raw series keys followed by derived keys.
func (c *Config) MetricKeys() []string {
	return append(c.SeriesKeys(), c.DerivedKeys()...)
}

// LabelFor resolves a display label for a series or derived key.
func (c *Config) LabelFor(key string) string {
	for _, s := range c.Series {
		if s.Key == key {
			return s.Label
		}
	}
	for _, d := range c.Derived {
		if d.Key == key {
			return d.Label
		}
	}
	return key
}

// UnitFor resolves the unit for a series or derived key.
func (c *Config) UnitFor(key string) string {
	for _, s := range c.Series {
		if s.Key == key {
			return s.Unit
		}
	}
	for _, d := range c.Derived {
		if d.Key == key {
			return d.Unit
		}
	}
	return ""
}

// AlertsBySeverity filters alert definitions by severity.
func (c *Config) AlertsBySeverity(severity string) []AlertRuleDef {
	out := make([]AlertRuleDef, 0, len(c.Alerts))
	for _, a := range c.Alerts {
		if a.Severity == severity {
			out = append(out, a)
		}
	}
	return out
}

// Validate performs sanity checks and compiles every expression so that malformed
// rules and unknown identifiers are rejected at load time.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, s := range c.Series {
		if s.Key == "" || s.SeriesID == "" {
			return fmt.Errorf("series entries require key and series_id")
		}
		if seen[s.Key] {
			return fmt.Errorf("duplicate series key %q", s.Key)
		}
		seen[s.Key] = true
	}

	// Derived expressions may reference raw series columns only.
	seriesKeys := c.SeriesKeys()
	for _, d := range c.Derived {
		if d.Key == "" || d.Expr == "" {
			return fmt.Errorf("derived entries require key and expr")
		}
		if seen[d.Key] {
			return fmt.Errorf("duplicate metric key %q", d.Key)
		}
		seen[d.Key] = true
		if _, err := rules.Compile(d.Expr, seriesKeys); err != nil {
			return fmt.Errorf("derived %q: %w", d.Key, err)
		}
	}

	statNames := make(map[string]bool)
	for _, ch := range c.Metrics.Changes {
		if ch.Kind != ChangeDiff && ch.Kind != ChangePct {
			return fmt.Errorf("change %q: unknown kind %q", ch.Name, ch.Kind)
		}
		if ch.Periods <= 0 {
			return fmt.Errorf("change %q: periods must be greater than zero", ch.Name)
		}
		if ch.Name == "" || statNames[ch.Name] {
			return fmt.Errorf("change statistics require unique names")
		}
		statNames[ch.Name] = true
	}
	for _, r := range c.Metrics.Rolling {
		switch r.Kind {
		case RollingMean, RollingStd, RollingZ:
		default:
			return fmt.Errorf("rolling %q: unknown kind %q", r.Name, r.Kind)
		}
		if r.Window <= 0 {
			return fmt.Errorf("rolling %q: window must be greater than zero", r.Name)
		}
		if r.Name == "" || statNames[r.Name] {
			return fmt.Errorf("rolling statistics require unique names")
		}
		statNames[r.Name] = true
	}

	ruleIdents := append([]string{"value"}, c.Metrics.StatNames()...)
	for _, a := range c.Alerts {
		switch a.Severity {
		case SeverityCritical, SeverityWarning, SeverityInfo:
		default:
			return fmt.Errorf("alert on %q: unknown severity %q", a.Key, a.Severity)
		}
		if !seen[a.Key] {
			return fmt.Errorf("alert references unknown metric %q", a.Key)
		}
		if _, err := rules.Compile(a.Rule, ruleIdents); err != nil {
			return fmt.Errorf("alert on %q: %w", a.Key, err)
		}
	}

	for _, sev := range c.Alerting.NotifySeverities {
		switch sev {
		case SeverityCritical, SeverityWarning, SeverityInfo:
		default:
			return fmt.Errorf("alerting.notify_severities: unknown severity %q", sev)
		}
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}

	if c.Schedule.FetchInterval <= 0 || c.Schedule.CheckInterval <= 0 {
		return fmt.Errorf("schedule intervals must be greater than zero")
	}
	if c.Export.MaxPoints <= 0 {
		return fmt.Errorf("export.max_points must be greater than zero")
	}
	if c.Export.Days <= 0 {
		return fmt.Errorf("export.days must be greater than zero")
	}

	return nil
}
