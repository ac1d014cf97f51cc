package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultRefresh        = "*/30 * * * *"
	defaultAPIBaseURL     = "https://calendar.example.com/api"
	defaultAPITimeout     = time.Hour
	defaultBatchSize      = 10
	defaultBatchSpacing   = 100 * time.Millisecond
	defaultFrequency      = "WEEKLY"
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultCacheDir       = "./var/ics-cache"
	defaultCacheTTL       = 24 * time.Hour
	envAPIToken           = "CALIMPORT_API_TOKEN"
	envAPIBaseURL         = "CALIMPORT_API_BASE_URL"
	envLogLevel           = "CALIMPORT_LOG_LEVEL"
	envCalendarID         = "CALIMPORT_CALENDAR_ID"
	envMemberID           = "CALIMPORT_MEMBER_ID"
	configTempFilePattern = ".calimport-config-*.tmp"
	configFilePermissions = 0o600
	configDirPermissions  = 0o700
)

// ICSConfig describes a single ICS subscription source that is imported on
// every scheduled refresh.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// APIConfig configures the remote calendar API transport.
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Token is sent as a bearer token. Prefer CALIMPORT_API_TOKEN over
	// storing it in the file.
	Token string `yaml:"token,omitempty" json:"-"`
	// Timeout bounds a single sync call. Import batches can be large, so
	// the default is generous.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ImportConfig configures the destination calendar and batch pacing.
type ImportConfig struct {
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	MemberID   string `yaml:"member_id" json:"member_id"`
	// BatchSize is the number of events submitted per sync call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// MinBatchSpacing is the minimum time between the start of two
	// consecutive batch encryption phases.
	MinBatchSpacing time.Duration `yaml:"min_batch_spacing" json:"min_batch_spacing"`
	// Keyring is the path of the YAML keyring holding address and
	// calendar keys.
	Keyring string `yaml:"keyring" json:"keyring"`
}

// RecurrenceConfig holds defaults used by the recurrence translator.
type RecurrenceConfig struct {
	// DefaultFrequency backs the base frequency selector of a
	// non-recurring event. One of DAILY, WEEKLY, MONTHLY, YEARLY.
	DefaultFrequency string `yaml:"default_frequency" json:"default_frequency"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Refresh is a cron-style schedule string (e.g. "*/30 * * * *") used
	// to re-import the configured ICS sources.
	Refresh string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the fetcher's per-URL HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// EventCacheTTL is how long imported events stay in the local cache.
	EventCacheTTL time.Duration `yaml:"event_cache_ttl" json:"event_cache_ttl"`

	API        APIConfig        `yaml:"api" json:"api"`
	Import     ImportConfig     `yaml:"import" json:"import"`
	Recurrence RecurrenceConfig `yaml:"recurrence" json:"recurrence"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
		Refresh:       defaultRefresh,
		CacheDir:      defaultCacheDir,
		EventCacheTTL: defaultCacheTTL,
		API: APIConfig{
			BaseURL: defaultAPIBaseURL,
			Timeout: defaultAPITimeout,
		},
		Import: ImportConfig{
			BatchSize:       defaultBatchSize,
			MinBatchSpacing: defaultBatchSpacing,
		},
		Recurrence: RecurrenceConfig{DefaultFrequency: defaultFrequency},
		ICS:        []ICSConfig{},
		BasicAuth:  nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = defaultLogFormat
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.EventCacheTTL <= 0 {
		c.EventCacheTTL = defaultCacheTTL
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultAPITimeout
	}
	if c.Import.BatchSize <= 0 {
		c.Import.BatchSize = defaultBatchSize
	}
	// Zero spacing is allowed (tests, local mocks); only negative is fixed.
	if c.Import.MinBatchSpacing < 0 {
		c.Import.MinBatchSpacing = defaultBatchSpacing
	}

	freq := strings.ToUpper(strings.TrimSpace(c.Recurrence.DefaultFrequency))
	switch freq {
	case "DAILY", "WEEKLY", "MONTHLY", "YEARLY":
		c.Recurrence.DefaultFrequency = freq
	default:
		// Unknown value; fall back to weekly, matching the editor default.
		c.Recurrence.DefaultFrequency = defaultFrequency
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// ApplyEnv overrides secrets and deployment specific values from the
// process environment. Callers typically load a .env file first.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(envAPIToken)); v != "" {
		c.API.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(envAPIBaseURL)); v != "" {
		c.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(envCalendarID)); v != "" {
		c.Import.CalendarID = v
	}
	if v := strings.TrimSpace(os.Getenv(envMemberID)); v != "" {
		c.Import.MemberID = v
	}
}

// Validate reports settings that an import run cannot proceed without.
func (c *Config) Validate() error {
	var missing []string
	if c.Import.CalendarID == "" {
		missing = append(missing, "import.calendar_id")
	}
	if c.Import.MemberID == "" {
		missing = append(missing, "import.member_id")
	}
	if c.Import.Keyring == "" {
		missing = append(missing, "import.keyring")
	}
	if len(missing) > 0 {
		return errors.New("config: missing required settings: " + strings.Join(missing, ", "))
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically via
// a temp file + rename, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, configTempFilePattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, configFilePermissions); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
