package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv names the environment variable holding an optional config
// file path. The format follows the extension: .yaml/.yml, .json or .toml.
const ConfigFileEnv = "WATCHANGEL_CONFIG_FILE"

const envPrefix = "WATCHANGEL_"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env        string           `koanf:"env" validate:"required,oneof=dev prod"`
	Log        LoggingConfig    `koanf:"log" validate:"required"`
	Paths      PathsConfig      `koanf:"paths" validate:"required"`
	State      StateConfig      `koanf:"state" validate:"required"`
	Rules      RulesConfig      `koanf:"rules" validate:"required"`
	Scan       ScanConfig       `koanf:"scan" validate:"required"`
	Watch      WatchConfig      `koanf:"watch" validate:"required"`
	Browser    BrowserConfig    `koanf:"browser" validate:"required"`
	Timeouts   TimeoutsConfig   `koanf:"timeouts" validate:"required"`
	Thumbnails ThumbnailsConfig `koanf:"thumbnails"`
}

// LoggingConfig controls log verbosity: "debug", "info", "warn", or "error".
type LoggingConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// PathsConfig locates the rule lists and the persisted state.
type PathsConfig struct {
	ConfigDir string `koanf:"config_dir" validate:"required"`
	StateDir  string `koanf:"state_dir" validate:"required"`
}

// StateConfig selects the block log backend.
type StateConfig struct {
	Backend string `koanf:"backend" validate:"required,oneof=jsonl bolt"`
	// BoltFile is relative to Paths.StateDir unless absolute.
	BoltFile string `koanf:"bolt_file" validate:"required_if=Backend bolt"`
}

// RulesConfig names the rule files below Paths.ConfigDir.
type RulesConfig struct {
	KeywordsFile string   `koanf:"keywords_file" validate:"required"`
	PhrasesFile  string   `koanf:"phrases_file" validate:"required"`
	ChannelsFile string   `koanf:"channels_file" validate:"required"`
	Languages    []string `koanf:"languages" validate:"required,min=1,dive,lang_code"`
	// Watch enables hot reload of the rule files.
	Watch bool `koanf:"watch"`
	// CacheSize bounds the decision cache; 0 disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`
}

// ScanConfig tunes the feed scanner.
type ScanConfig struct {
	FeedURL       string        `koanf:"feed_url" validate:"required,url"`
	MaxRounds     int           `koanf:"max_rounds" validate:"gte=1"`
	MaxIdleRounds int           `koanf:"max_idle_rounds" validate:"gte=1"`
	Pause         time.Duration `koanf:"pause" validate:"gte=0"`
}

// WatchConfig tunes the watch loop and removals.
type WatchConfig struct {
	EntryPause   time.Duration `koanf:"entry_pause" validate:"gte=0"`
	Settle       time.Duration `koanf:"settle" validate:"gte=0"`
	Cooldown     time.Duration `koanf:"cooldown" validate:"gt=0"`
	RemovalPause time.Duration `koanf:"removal_pause" validate:"gte=0"`
	SeenCapacity int           `koanf:"seen_capacity" validate:"gte=1"`
}

// BrowserConfig selects the automation driver.
type BrowserConfig struct {
	// Driver is "chromedp" for a real browser or "fake" for a dry run
	// against a JSON fixture.
	Driver      string `koanf:"driver" validate:"required,oneof=chromedp fake"`
	Fixture     string `koanf:"fixture" validate:"required_if=Driver fake"`
	Headless    bool   `koanf:"headless"`
	UserDataDir string `koanf:"user_data_dir"`
	ExecPath    string `koanf:"exec_path"`
}

// TimeoutsConfig bounds every wait on the remote surface.
type TimeoutsConfig struct {
	Poll     time.Duration `koanf:"poll" validate:"gt=0"`
	Button   time.Duration `koanf:"button" validate:"gt=0"`
	Marker   time.Duration `koanf:"marker" validate:"gt=0"`
	Report   time.Duration `koanf:"report" validate:"gt=0"`
	Menu     time.Duration `koanf:"menu" validate:"gt=0"`
	Submit   time.Duration `koanf:"submit" validate:"gt=0"`
	Continue time.Duration `koanf:"continue" validate:"gt=0"`
	Toggle   time.Duration `koanf:"toggle" validate:"gt=0"`
	Done     time.Duration `koanf:"done" validate:"gt=0"`
	// Navigate bounds any single browser call, page loads included.
	Navigate time.Duration `koanf:"navigate" validate:"gt=0"`
}

// ThumbnailsConfig enables thumbnail archiving when Dir is set.
type ThumbnailsConfig struct {
	Dir     string `koanf:"dir"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

// DEFAULT_APP_CONFIG holds the defaults loaded before the config file and
// the environment.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:   "prod",
	Log:   LoggingConfig{Level: "info"},
	Paths: PathsConfig{ConfigDir: "/etc/watchangel", StateDir: "/var/lib/watchangel"},
	State: StateConfig{Backend: "jsonl", BoltFile: "blocked_channels.db"},
	Rules: RulesConfig{
		KeywordsFile: "block_keywords.txt",
		PhrasesFile:  "block_phrases.txt",
		ChannelsFile: "block_channels.txt",
		Languages:    []string{"de", "en", "ja"},
		Watch:        true,
		CacheSize:    1024,
	},
	Scan: ScanConfig{
		FeedURL:       "https://www.youtube.com/feed/history",
		MaxRounds:     50,
		MaxIdleRounds: 3,
		Pause:         2 * time.Second,
	},
	Watch: WatchConfig{
		EntryPause:   1 * time.Second,
		Settle:       3 * time.Second,
		Cooldown:     10 * time.Second,
		RemovalPause: 1 * time.Second,
		SeenCapacity: 10000,
	},
	Browser: BrowserConfig{Driver: "chromedp"},
	Timeouts: TimeoutsConfig{
		Poll:     250 * time.Millisecond,
		Button:   5 * time.Second,
		Marker:   10 * time.Second,
		Report:   10 * time.Second,
		Menu:     5 * time.Second,
		Submit:   5 * time.Second,
		Continue: 10 * time.Second,
		Toggle:   10 * time.Second,
		Done:     5 * time.Second,
		Navigate: 30 * time.Second,
	},
	Thumbnails: ThumbnailsConfig{BaseURL: "https://i.ytimg.com/vi"},
}

// envKeys maps environment variables to config keys.
var envKeys = map[string]string{
	"WATCHANGEL_ENV":                 "env",
	"WATCHANGEL_LOG_LEVEL":           "log.level",
	"WATCHANGEL_CONFIG_DIR":          "paths.config_dir",
	"WATCHANGEL_STATE_DIR":           "paths.state_dir",
	"WATCHANGEL_STATE_BACKEND":       "state.backend",
	"WATCHANGEL_STATE_BOLT_FILE":     "state.bolt_file",
	"WATCHANGEL_RULES_KEYWORDS":      "rules.keywords_file",
	"WATCHANGEL_RULES_PHRASES":       "rules.phrases_file",
	"WATCHANGEL_RULES_CHANNELS":      "rules.channels_file",
	"WATCHANGEL_RULES_LANGUAGES":     "rules.languages",
	"WATCHANGEL_RULES_WATCH":         "rules.watch",
	"WATCHANGEL_RULES_CACHE_SIZE":    "rules.cache_size",
	"WATCHANGEL_FEED_URL":            "scan.feed_url",
	"WATCHANGEL_SCAN_MAX_ROUNDS":     "scan.max_rounds",
	"WATCHANGEL_SCAN_IDLE_ROUNDS":    "scan.max_idle_rounds",
	"WATCHANGEL_SCAN_PAUSE":          "scan.pause",
	"WATCHANGEL_WATCH_ENTRY_PAUSE":   "watch.entry_pause",
	"WATCHANGEL_WATCH_SETTLE":        "watch.settle",
	"WATCHANGEL_WATCH_COOLDOWN":      "watch.cooldown",
	"WATCHANGEL_WATCH_REMOVAL_PAUSE": "watch.removal_pause",
	"WATCHANGEL_WATCH_SEEN_CAPACITY": "watch.seen_capacity",
	"WATCHANGEL_BROWSER_DRIVER":      "browser.driver",
	"WATCHANGEL_BROWSER_FIXTURE":     "browser.fixture",
	"WATCHANGEL_BROWSER_HEADLESS":    "browser.headless",
	"WATCHANGEL_BROWSER_PROFILE":     "browser.user_data_dir",
	"WATCHANGEL_BROWSER_EXEC":        "browser.exec_path",
	"WATCHANGEL_TIMEOUT_POLL":        "timeouts.poll",
	"WATCHANGEL_TIMEOUT_BUTTON":      "timeouts.button",
	"WATCHANGEL_TIMEOUT_MARKER":      "timeouts.marker",
	"WATCHANGEL_TIMEOUT_REPORT":      "timeouts.report",
	"WATCHANGEL_TIMEOUT_MENU":        "timeouts.menu",
	"WATCHANGEL_TIMEOUT_SUBMIT":      "timeouts.submit",
	"WATCHANGEL_TIMEOUT_CONTINUE":    "timeouts.continue",
	"WATCHANGEL_TIMEOUT_TOGGLE":      "timeouts.toggle",
	"WATCHANGEL_TIMEOUT_DONE":        "timeouts.done",
	"WATCHANGEL_TIMEOUT_NAVIGATE":    "timeouts.navigate",
	"WATCHANGEL_THUMBNAIL_DIR":       "thumbnails.dir",
	"WATCHANGEL_THUMBNAIL_BASE_URL":  "thumbnails.base_url",
}

// listKeys are split on spaces and commas.
var listKeys = map[string]bool{
	"rules.languages": true,
}

var langCodeRe = regexp.MustCompile(`^[a-z]{2}$`)

// validLangCode accepts ISO 639-1 codes in lower case.
func validLangCode(fl validator.FieldLevel) bool {
	return langCodeRe.MatchString(fl.Field().String())
}

// envLoader loads the mapped WATCHANGEL_ variables. Unknown variables with
// the prefix are ignored. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			mapped, ok := envKeys[key]
			if !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)
			if listKeys[mapped] {
				return mapped, strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
			}
			return mapped, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads an optional config file, picking the parser from the
// file extension. An empty path is a no-op.
var fileLoader = func(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the "lang_code" validation.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("lang_code", validLangCode)
}

// Load layers defaults, the optional config file and the environment, then
// validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := fileLoader(k, strings.TrimSpace(os.Getenv(ConfigFileEnv))); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// StatePath resolves name below Paths.StateDir unless it is absolute.
func (c *AppConfig) StatePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.StateDir, name)
}

// ConfigPath resolves name below Paths.ConfigDir unless it is absolute.
func (c *AppConfig) ConfigPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.ConfigDir, name)
}
