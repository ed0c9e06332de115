package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/maltedev/listing-autoposter/internal/browser"
	"github.com/maltedev/listing-autoposter/internal/database"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/ratelimit"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Automation AutomationConfig
	Craigslist CraigslistConfig
	Facebook   FacebookConfig
	Payment    automation.PaymentInfo
	Store      StoreConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	RunLog     RunLogConfig
	Watch      WatchConfig
	Limits     LimitsConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type BrowserConfig struct {
	ProfileDir        string
	Headless          bool
	Channel           string
	KeepOpen          bool
	ElementTimeout    time.Duration
	NavigationTimeout time.Duration
	NavigationRetries int
	ViewportWidth     int
	ViewportHeight    int
	Locale            string
	TimezoneID        string
}

type AutomationConfig struct {
	ImageDir           string
	ImageTempName      string
	ImageSettleTimeout time.Duration
	StepDelayMin       time.Duration
	StepDelayMax       time.Duration
	PolicyCheck        bool
	DebugDir           string
	DebugRetention     time.Duration
}

type CraigslistConfig struct {
	PostURL       string
	CategoryIndex int
	SubArea       string
	ContactEmail  string
	ContactName   string
	Footer        string
}

type FacebookConfig struct {
	CreateURL string
}

type StoreConfig struct {
	Backend string
	File    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RunLogConfig struct {
	Backend    string
	KeyPrefix  string
	MaxEntries int
	TTL        time.Duration
}

type WatchConfig struct {
	Interval time.Duration
}

type LimitsConfig struct {
	Enabled             bool
	Backend             string
	FacebookMaxPerDay   int
	FacebookMinGap      time.Duration
	CraigslistMaxPerDay int
	CraigslistMinGap    time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the given .env files (".env" when none are named), then the
// environment, then the optional payment profile. Missing .env files are
// not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cl := automation.DefaultCraigslistConfig()
	fb := automation.DefaultFacebookConfig()
	bo := browser.DefaultOptions()
	oc := orchestrator.DefaultConfig()
	limits := ratelimit.DefaultLimits()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "5000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Browser: BrowserConfig{
			ProfileDir:        getEnvOrDefault("BROWSER_PROFILE_DIR", bo.ProfileDir),
			Headless:          getBoolOrDefault("BROWSER_HEADLESS", bo.Headless),
			Channel:           getEnvOrDefault("BROWSER_CHANNEL", bo.Channel),
			KeepOpen:          getBoolOrDefault("BROWSER_KEEP_OPEN", bo.KeepOpen),
			ElementTimeout:    getDurationOrDefault("BROWSER_ELEMENT_TIMEOUT", bo.ElementTimeout),
			NavigationTimeout: getDurationOrDefault("BROWSER_NAV_TIMEOUT", bo.NavigationTimeout),
			NavigationRetries: getIntOrDefault("BROWSER_NAV_RETRIES", bo.NavigationRetries),
			ViewportWidth:     getIntOrDefault("BROWSER_VIEWPORT_WIDTH", bo.ViewportWidth),
			ViewportHeight:    getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", bo.ViewportHeight),
			Locale:            getEnvOrDefault("BROWSER_LOCALE", bo.Locale),
			TimezoneID:        getEnvOrDefault("BROWSER_TIMEZONE", bo.TimezoneID),
		},
		Automation: AutomationConfig{
			ImageDir:           getEnvOrDefault("IMAGE_DIR", oc.ImageDir),
			ImageTempName:      getEnvOrDefault("IMAGE_TEMP_NAME", oc.ImageTempName),
			ImageSettleTimeout: getDurationOrDefault("IMAGE_SETTLE_TIMEOUT", cl.SettleTimeout),
			StepDelayMin:       getDurationOrDefault("STEP_DELAY_MIN", 500*time.Millisecond),
			StepDelayMax:       getDurationOrDefault("STEP_DELAY_MAX", 1500*time.Millisecond),
			PolicyCheck:        getBoolOrDefault("FB_POLICY_CHECK", true),
			DebugDir:           getEnvOrDefault("DEBUG_SCREENSHOT_DIR", "debug_screenshots"),
			DebugRetention:     getDurationOrDefault("DEBUG_RETENTION", oc.DebugRetention),
		},
		Craigslist: CraigslistConfig{
			PostURL:       getEnvOrDefault("CRAIGSLIST_POST_URL", cl.PostURL),
			CategoryIndex: getIntOrDefault("CRAIGSLIST_CATEGORY_INDEX", cl.CategoryIndex),
			SubArea:       getEnvOrDefault("CRAIGSLIST_SUB_AREA", cl.SubArea),
			ContactEmail:  getEnvOrDefault("CRAIGSLIST_CONTACT_EMAIL", ""),
			ContactName:   getEnvOrDefault("CRAIGSLIST_CONTACT_NAME", ""),
			Footer:        getEnvOrDefault("CRAIGSLIST_FOOTER", cl.Footer),
		},
		Facebook: FacebookConfig{
			CreateURL: getEnvOrDefault("FACEBOOK_CREATE_URL", fb.CreateURL),
		},
		Store: StoreConfig{
			Backend: getEnvOrDefault("STORE_BACKEND", StoreFile),
			File:    getEnvOrDefault("STORE_FILE", "inventory.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "autoposter"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		RunLog: RunLogConfig{
			Backend:    getEnvOrDefault("RUNLOG_BACKEND", BackendMemory),
			KeyPrefix:  getEnvOrDefault("RUNLOG_KEY_PREFIX", "autoposter:runlog:"),
			MaxEntries: getIntOrDefault("RUNLOG_MAX_ENTRIES", 1000),
			TTL:        getDurationOrDefault("RUNLOG_TTL", 24*time.Hour),
		},
		Watch: WatchConfig{
			Interval: getDurationOrDefault("WATCH_INTERVAL", 5*time.Second),
		},
		Limits: LimitsConfig{
			Enabled:             getBoolOrDefault("POSTING_LIMITS_ENABLED", false),
			Backend:             getEnvOrDefault("POSTING_LIMITS_BACKEND", BackendMemory),
			FacebookMaxPerDay:   getIntOrDefault("FB_MAX_POSTS_PER_DAY", limits[automation.SiteFacebook].MaxPerDay),
			FacebookMinGap:      getMinutesOrDefault("FB_MIN_POST_GAP_MINUTES", limits[automation.SiteFacebook].MinGap),
			CraigslistMaxPerDay: getIntOrDefault("CL_MAX_POSTS_PER_DAY", limits[automation.SiteCraigslist].MaxPerDay),
			CraigslistMinGap:    getMinutesOrDefault("CL_MIN_POST_GAP_MINUTES", limits[automation.SiteCraigslist].MinGap),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("PAYMENT_PROFILE"); path != "" {
		p, err := LoadPaymentProfile(path)
		if err != nil {
			return nil, err
		}
		cfg.Payment = *p
	}
	applyPaymentOverrides(&cfg.Payment)

	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadPaymentProfile decodes the YAML billing profile at path.
func LoadPaymentProfile(path string) (*automation.PaymentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payment profile: %w", err)
	}

	var p automation.PaymentInfo
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing payment profile %s: %w", path, err)
	}
	return &p, nil
}

func applyPaymentOverrides(p *automation.PaymentInfo) {
	p.CardName = getEnvOrDefault("PAYMENT_CARD_NAME", p.CardName)
	p.CardNumber = getEnvOrDefault("PAYMENT_CARD_NUMBER", p.CardNumber)
	p.ExpMonth = getEnvOrDefault("PAYMENT_EXP_MONTH", p.ExpMonth)
	p.ExpYear = getEnvOrDefault("PAYMENT_EXP_YEAR", p.ExpYear)
	p.CVC = getEnvOrDefault("PAYMENT_CVC", p.CVC)
	p.Address = getEnvOrDefault("PAYMENT_ADDRESS", p.Address)
	p.City = getEnvOrDefault("PAYMENT_CITY", p.City)
	p.State = getEnvOrDefault("PAYMENT_STATE", p.State)
	p.Postal = getEnvOrDefault("PAYMENT_POSTAL", p.Postal)
	p.Phone = getEnvOrDefault("PAYMENT_PHONE", p.Phone)
}

func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("SERVER_PORT must be numeric, got %q", c.Server.Port)
	}

	if c.Automation.StepDelayMin > c.Automation.StepDelayMax {
		return fmt.Errorf("STEP_DELAY_MIN cannot be greater than STEP_DELAY_MAX")
	}

	if c.Craigslist.CategoryIndex < 0 {
		return fmt.Errorf("CRAIGSLIST_CATEGORY_INDEX must not be negative")
	}

	if c.Watch.Interval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL must be positive")
	}

	switch c.Store.Backend {
	case StoreFile:
		if c.Store.File == "" {
			return fmt.Errorf("STORE_FILE is required for the file backend")
		}
	case StorePostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreFile, StorePostgres, c.Store.Backend)
	}

	if !validBackend(c.RunLog.Backend) {
		return fmt.Errorf("RUNLOG_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.RunLog.Backend)
	}

	if c.Limits.Enabled && !validBackend(c.Limits.Backend) {
		return fmt.Errorf("POSTING_LIMITS_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.Limits.Backend)
	}

	return nil
}

func validBackend(b string) bool {
	return b == BackendMemory || b == BackendRedis
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.RunLog.Backend == BackendRedis ||
		(c.Limits.Enabled && c.Limits.Backend == BackendRedis) ||
		c.Store.Backend == StorePostgres
}

func (c *Config) BrowserOptions() *browser.Options {
	return &browser.Options{
		ProfileDir:        c.Browser.ProfileDir,
		Headless:          c.Browser.Headless,
		Channel:           c.Browser.Channel,
		KeepOpen:          c.Browser.KeepOpen,
		ElementTimeout:    c.Browser.ElementTimeout,
		NavigationTimeout: c.Browser.NavigationTimeout,
		NavigationRetries: c.Browser.NavigationRetries,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
		Locale:            c.Browser.Locale,
		TimezoneID:        c.Browser.TimezoneID,
	}
}

func (c *Config) CraigslistDriver() automation.CraigslistConfig {
	cl := automation.DefaultCraigslistConfig()
	cl.PostURL = c.Craigslist.PostURL
	cl.CategoryIndex = c.Craigslist.CategoryIndex
	cl.SubArea = c.Craigslist.SubArea
	cl.ContactEmail = c.Craigslist.ContactEmail
	cl.ContactName = c.Craigslist.ContactName
	cl.Footer = c.Craigslist.Footer
	cl.Payment = c.Payment
	cl.ElementTimeout = c.Browser.ElementTimeout
	cl.SettleTimeout = c.Automation.ImageSettleTimeout
	return cl
}

func (c *Config) FacebookDriver() automation.FacebookConfig {
	fb := automation.DefaultFacebookConfig()
	fb.CreateURL = c.Facebook.CreateURL
	fb.ElementTimeout = c.Browser.ElementTimeout
	fb.SettleTimeout = c.Automation.ImageSettleTimeout
	return fb
}

func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		ImageDir:       c.Automation.ImageDir,
		ImageTempName:  c.Automation.ImageTempName,
		EnforcePolicy:  c.Automation.PolicyCheck,
		DebugDir:       c.Automation.DebugDir,
		DebugRetention: c.Automation.DebugRetention,
		TerminalStatus: models.StatusActive,
	}
}

func (c *Config) PostingLimits() map[string]ratelimit.Limits {
	return map[string]ratelimit.Limits{
		automation.SiteFacebook: {
			MaxPerDay: c.Limits.FacebookMaxPerDay,
			MinGap:    c.Limits.FacebookMinGap,
		},
		automation.SiteCraigslist: {
			MaxPerDay: c.Limits.CraigslistMaxPerDay,
			MinGap:    c.Limits.CraigslistMinGap,
		},
	}
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.DBName,
		SSLMode:  c.Database.SSLMode,
		MaxConns: c.Database.MaxConns,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getMinutesOrDefault reads a bare integer number of minutes.
func getMinutesOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if m, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(m) * time.Minute
		}
	}
	return defaultValue
}
