// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/operant/api/schemas"
)

// LogLevel is the application verbosity ladder. It is wider than the zap
// level set because ACTION and ALL gate structured event families (per-action
// events, wire dumps) on top of the underlying log backend level.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogError
	LogInfo
	LogAction
	LogDebug
	LogAll
)

var logLevelNames = map[LogLevel]string{
	LogNone:   "NONE",
	LogError:  "ERROR",
	LogInfo:   "INFO",
	LogAction: "ACTION",
	LogDebug:  "DEBUG",
	LogAll:    "ALL",
}

// ParseLogLevel resolves a case-insensitive level name.
func ParseLogLevel(s string) (LogLevel, error) {
	for lvl, name := range logLevelNames {
		if strings.EqualFold(s, name) {
			return lvl, nil
		}
	}
	return LogInfo, fmt.Errorf("unknown log level %q (want one of NONE, ERROR, INFO, ACTION, DEBUG, ALL)", s)
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// Enables reports whether output gated at min is emitted at this level.
func (l LogLevel) Enables(min LogLevel) bool { return l >= min }

// Config is the root application configuration. All fields are populated from
// viper (file, environment, flag bindings) and validated before use. The
// struct is treated as immutable after construction; components that need
// different settings get their own instance.
type Config struct {
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Safety     SafetyConfig     `mapstructure:"safety" yaml:"safety"`
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
}

// Safety check acknowledgment modes accepted by AgentConfig.AckMode.
const (
	AckModeAuto   = "auto"   // Acknowledge model-raised checks without asking.
	AckModePrompt = "prompt" // Ask the registered callback per action.
	AckModeDeny   = "deny"   // Refuse; the action is recorded as blocked.
)

// AgentConfig bounds the turn controller.
type AgentConfig struct {
	// MaxIterations caps model round trips per turn. Zero applies the
	// built-in cap.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// AckMode decides how model-raised safety checks are answered:
	// "auto" acknowledges, "prompt" asks the registered callback,
	// "deny" refuses and the action is blocked.
	AckMode string `mapstructure:"ack_mode" yaml:"ack_mode"`
}

// LoggerConfig configures the zap backend and the rotation sink.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
	Colors      bool   `mapstructure:"colors" yaml:"colors"`
}

// ParsedLevel returns the validated LogLevel. Call Validate first; garbage
// falls back to INFO here so a misconfigured logger still logs.
func (lc LoggerConfig) ParsedLevel() LogLevel {
	lvl, err := ParseLogLevel(lc.Level)
	if err != nil {
		return LogInfo
	}
	return lvl
}

// ViewportConfig is the browser surface size reported to the model.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// NavigationConfig bounds page navigation waits. When Adaptive is set the
// effective timeout follows Multiplier x the rolling average of the last
// History recorded navigations, clamped to [MinTimeout, MaxTimeout].
type NavigationConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinTimeout time.Duration `mapstructure:"min_timeout" yaml:"min_timeout"`
	MaxTimeout time.Duration `mapstructure:"max_timeout" yaml:"max_timeout"`
	Adaptive   bool          `mapstructure:"adaptive" yaml:"adaptive"`
	History    int           `mapstructure:"history" yaml:"history"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// BrowserConfig configures the chromedp execution target.
type BrowserConfig struct {
	Headless        bool             `mapstructure:"headless" yaml:"headless"`
	UserAgent       string           `mapstructure:"user_agent" yaml:"user_agent"`
	Viewport        ViewportConfig   `mapstructure:"viewport" yaml:"viewport"`
	DisableCache    bool             `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool             `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string         `mapstructure:"args" yaml:"args"`
	Navigation      NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
}

// Capture modes accepted by ScreenshotConfig.Mode.
const (
	ScreenshotModeNone   = "none"   // Never capture.
	ScreenshotModeSearch = "search" // Capture only after search operations.
	ScreenshotModeAll    = "all"    // Capture after every visually significant action.
)

// ScreenshotConfig controls capture policy and the on-disk store.
type ScreenshotConfig struct {
	// Mode is one of none, search, all.
	Mode    string `mapstructure:"mode" yaml:"mode"`
	Format  string `mapstructure:"format" yaml:"format"`
	Quality int    `mapstructure:"quality" yaml:"quality"`
	// SaveToDisk persists captures under Dir in addition to feeding them
	// back to the model.
	SaveToDisk bool   `mapstructure:"save_to_disk" yaml:"save_to_disk"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	// MaxFiles caps retained screenshots; the oldest are deleted beyond it.
	MaxFiles int `mapstructure:"max_files" yaml:"max_files"`
	// CleanupInterval runs retention every Nth save.
	CleanupInterval int `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	// CompareThreshold > 0 suppresses saving a capture identical to the
	// previous one.
	CompareThreshold float64 `mapstructure:"compare_threshold" yaml:"compare_threshold"`
}

// ResolvedDir expands a leading ~ in the screenshot directory.
func (sc ScreenshotConfig) ResolvedDir() (string, error) {
	return homedir.Expand(sc.Dir)
}

// SearchConfig configures the resilient search fallback driver.
type SearchConfig struct {
	Resilient   bool   `mapstructure:"resilient" yaml:"resilient"`
	Engine      string `mapstructure:"engine" yaml:"engine"`
	Humanlike   bool   `mapstructure:"humanlike" yaml:"humanlike"`
	Language    string `mapstructure:"language" yaml:"language"`
	Region      string `mapstructure:"region" yaml:"region"`
	Safe        bool   `mapstructure:"safe" yaml:"safe"`
	TimePeriod  string `mapstructure:"time_period" yaml:"time_period"`
	ContentType string `mapstructure:"content_type" yaml:"content_type"`
	Site        string `mapstructure:"site" yaml:"site"`
	ResultCount int    `mapstructure:"result_count" yaml:"result_count"`
	// AttemptsPerEngine is how often one engine is tried before falling
	// through to the next.
	AttemptsPerEngine int `mapstructure:"attempts_per_engine" yaml:"attempts_per_engine"`
	// BlockedMarkers are lowercase substrings whose presence in a results
	// page classifies the attempt as blocked rather than failed.
	BlockedMarkers []string `mapstructure:"blocked_markers" yaml:"blocked_markers"`
	// PaceInterval rate-limits consecutive engine attempts.
	PaceInterval time.Duration `mapstructure:"pace_interval" yaml:"pace_interval"`
}

// Request builds the immutable search request for a query from the
// configured policy.
func (sc SearchConfig) Request(query string) schemas.SearchRequest {
	return schemas.SearchRequest{
		Query:       query,
		Engine:      schemas.SearchEngine(sc.Engine),
		Language:    sc.Language,
		Region:      sc.Region,
		SafeSearch:  sc.Safe,
		TimePeriod:  sc.TimePeriod,
		ContentType: schemas.SearchContentType(sc.ContentType),
		Site:        sc.Site,
		ResultCount: sc.ResultCount,
		Humanlike:   sc.Humanlike,
	}
}

// SafetyConfig is the declarative rule set behind the safety gate.
type SafetyConfig struct {
	BlockedDomains []string `mapstructure:"blocked_domains" yaml:"blocked_domains"`
	// DestructiveCombos lists key chords that are always blocked,
	// e.g. [["ctrl","w"]].
	DestructiveCombos [][]string `mapstructure:"destructive_combos" yaml:"destructive_combos"`
	// RequireAck routes model-raised safety checks through the acknowledgment
	// flow. When false the checks pass through as pre-acknowledged.
	RequireAck bool `mapstructure:"require_ack" yaml:"require_ack"`
}

// ModelConfig configures the Responses API client.
type ModelConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Org      string `mapstructure:"org" yaml:"org"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	// RequestTimeout bounds one HTTP exchange; MaxElapsed bounds the whole
	// retry schedule for one logical request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxElapsed     time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// NewDefaultConfig creates a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every recognized key.
func SetDefaults(v *viper.Viper) {
	// -- Agent --
	v.SetDefault("agent.max_iterations", 0)
	v.SetDefault("agent.ack_mode", "auto")

	// -- Logger --
	v.SetDefault("logger.level", "INFO")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "operant")
	v.SetDefault("logger.log_file", "operant.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport.width", 1024)
	v.SetDefault("browser.viewport.height", 768)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation.timeout", "30s")
	v.SetDefault("browser.navigation.min_timeout", "5s")
	v.SetDefault("browser.navigation.max_timeout", "60s")
	v.SetDefault("browser.navigation.adaptive", true)
	v.SetDefault("browser.navigation.history", 10)
	v.SetDefault("browser.navigation.multiplier", 1.5)

	// -- Screenshot --
	v.SetDefault("screenshot.mode", "all")
	v.SetDefault("screenshot.format", "jpeg")
	v.SetDefault("screenshot.quality", 85)
	v.SetDefault("screenshot.save_to_disk", true)
	v.SetDefault("screenshot.dir", "screenshots")
	v.SetDefault("screenshot.max_files", 100)
	v.SetDefault("screenshot.cleanup_interval", 10)
	v.SetDefault("screenshot.compare_threshold", 0.95)

	// -- Search --
	v.SetDefault("search.resilient", true)
	v.SetDefault("search.engine", "auto")
	v.SetDefault("search.humanlike", false)
	v.SetDefault("search.safe", true)
	v.SetDefault("search.content_type", "web")
	v.SetDefault("search.result_count", 10)
	v.SetDefault("search.attempts_per_engine", 1)
	v.SetDefault("search.blocked_markers", []string{
		"unusual traffic",
		"captcha",
		"recaptcha",
		"are you a robot",
		"verify you are human",
		"consent.google.com",
		"before you continue",
	})
	v.SetDefault("search.pace_interval", "2s")

	// -- Safety --
	v.SetDefault("safety.blocked_domains", []string{
		"maliciousbook.com",
		"evilvideos.com",
		"darkwebforum.com",
		"shadytok.com",
		"suspiciouspins.com",
		"ilanbigio.com",
	})
	v.SetDefault("safety.destructive_combos", [][]string{
		{"ctrl", "w"},
		{"alt", "f4"},
		{"cmd", "q"},
	})
	v.SetDefault("safety.require_ack", true)

	// -- Model --
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.model", "computer-use-preview")
	v.SetDefault("model.base_url", "https://api.openai.com/v1")
	v.SetDefault("model.request_timeout", "60s")
	v.SetDefault("model.max_elapsed", "2m")
}

// NewConfigFromViper builds and validates a configuration from a viper
// instance that already has file/env/flag sources attached.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for secrets.
	v.BindEnv("model.api_key", "OPERANT_MODEL_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("model.org", "OPERANT_MODEL_ORG", "OPENAI_ORG")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal can miss env-only bindings when the key never appears in any
	// other source.
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger configuration invalid: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Screenshot.Validate(); err != nil {
		return fmt.Errorf("screenshot configuration invalid: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search configuration invalid: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the agent loop bounds.
func (a *AgentConfig) Validate() error {
	if a.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	switch a.AckMode {
	case AckModeAuto, AckModePrompt, AckModeDeny:
	default:
		return fmt.Errorf("ack_mode must be one of auto, prompt, deny; got %q", a.AckMode)
	}
	return nil
}

// Validate checks the logger settings.
func (lc *LoggerConfig) Validate() error {
	if _, err := ParseLogLevel(lc.Level); err != nil {
		return err
	}
	switch lc.Format {
	case "console", "json":
	default:
		return fmt.Errorf("format must be console or json; got %q", lc.Format)
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("viewport dimensions must be positive, got %dx%d", b.Viewport.Width, b.Viewport.Height)
	}
	n := b.Navigation
	if n.MinTimeout <= 0 || n.MaxTimeout < n.MinTimeout {
		return fmt.Errorf("navigation timeout bounds invalid: min %s, max %s", n.MinTimeout, n.MaxTimeout)
	}
	if n.Timeout < n.MinTimeout || n.Timeout > n.MaxTimeout {
		return fmt.Errorf("navigation.timeout %s outside [%s, %s]", n.Timeout, n.MinTimeout, n.MaxTimeout)
	}
	if n.Adaptive && (n.History <= 0 || n.Multiplier <= 0) {
		return fmt.Errorf("adaptive navigation needs positive history and multiplier")
	}
	return nil
}

// Validate checks the screenshot settings.
func (sc *ScreenshotConfig) Validate() error {
	switch sc.Mode {
	case ScreenshotModeNone, ScreenshotModeSearch, ScreenshotModeAll:
	default:
		return fmt.Errorf("mode must be one of none, search, all; got %q", sc.Mode)
	}
	switch sc.Format {
	case "jpeg", "png":
	default:
		return fmt.Errorf("format must be jpeg or png; got %q", sc.Format)
	}
	if sc.Quality < 1 || sc.Quality > 100 {
		return fmt.Errorf("quality must be within [1, 100], got %d", sc.Quality)
	}
	if sc.MaxFiles < 0 || sc.CleanupInterval <= 0 {
		return fmt.Errorf("max_files must not be negative and cleanup_interval must be positive")
	}
	return nil
}

// Validate checks the search policy.
func (s *SearchConfig) Validate() error {
	if !schemas.SearchEngine(s.Engine).Valid() {
		return fmt.Errorf("engine must be one of auto, google, bing, duckduckgo, yahoo; got %q", s.Engine)
	}
	switch schemas.SearchContentType(s.ContentType) {
	case schemas.ContentWeb, schemas.ContentNews, schemas.ContentImages, schemas.ContentVideos, schemas.ContentShopping:
	default:
		return fmt.Errorf("content_type %q not recognized", s.ContentType)
	}
	switch s.TimePeriod {
	case "", "hour", "day", "week", "month", "year":
	default:
		return fmt.Errorf("time_period %q not recognized", s.TimePeriod)
	}
	if s.ResultCount < 1 || s.ResultCount > 50 {
		return fmt.Errorf("result_count must be within [1, 50], got %d", s.ResultCount)
	}
	if s.AttemptsPerEngine < 1 {
		return fmt.Errorf("attempts_per_engine must be at least 1")
	}
	return nil
}

// Validate checks the model client settings. The API key is deliberately not
// required here: commands that never reach the model (search, serve without
// agent tools) must start without one.
func (m *ModelConfig) Validate() error {
	if m.Provider != "openai" {
		return fmt.Errorf("provider %q not supported", m.Provider)
	}
	if m.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if m.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if m.RequestTimeout <= 0 || m.MaxElapsed <= 0 {
		return fmt.Errorf("request_timeout and max_elapsed must be positive")
	}
	return nil
}
