package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	FetcherHTTP  = "http"
	FetcherColly = "colly"

	DriverNone     = ""
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type SiteConfig struct {
	Name      string   `yaml:"name"`
	BaseURL   string   `yaml:"base_url"`
	SeedPaths []string `yaml:"seed_paths"`
	Keywords  []string `yaml:"keywords"`
}

type DBConfig struct {
	Driver      string `yaml:"driver"`
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	Collections struct {
		Posts string `yaml:"posts"`
	} `yaml:"collections"`
}

type LogicConfig struct {
	DelayMS              int    `yaml:"delay_ms"`
	TimeoutSec           int    `yaml:"timeout_sec"`
	ImageTimeoutSec      int    `yaml:"image_timeout_sec"`
	MaxRetries           int    `yaml:"max_retries"`
	MaxConcurrentWorkers int    `yaml:"max_concurrent_workers"`
	MaxURLsPerSite       int    `yaml:"max_urls_per_site"`
	MaxImagesPerRecord   int    `yaml:"max_images_per_record"`
	UserAgent            string `yaml:"user_agent"`
	Fetcher              string `yaml:"fetcher"`
	RespectRobots        bool   `yaml:"respect_robots"`
}

type StorageConfig struct {
	OutputDir string `yaml:"output_dir"`
}

type ValidationConfig struct {
	MinTitleLength     int      `yaml:"min_title_length"`
	MinContentLength   int      `yaml:"min_content_length"`
	MaxContentLength   int      `yaml:"max_content_length"`
	MinContentKeywords int      `yaml:"min_content_keywords"`
	RequiredKeywords   []string `yaml:"required_keywords"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type SpiderConfig struct {
	DB         DBConfig         `yaml:"db"`
	Logic      LogicConfig      `yaml:"logic"`
	Storage    StorageConfig    `yaml:"storage"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
	Sites      []SiteConfig     `yaml:"sites"`
}

// Defaults applied by SetDefaults.
const (
	DefaultDelayMS              = 1000
	DefaultTimeoutSec           = 30
	DefaultImageTimeoutSec      = 30
	DefaultMaxRetries           = 2
	DefaultMaxConcurrentWorkers = 4
	DefaultMaxURLsPerSite       = 20
	DefaultMaxImagesPerRecord   = 10
	DefaultUserAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultOutputDir            = "scraped_content"
	DefaultPostsCollection      = "blog_posts"

	DefaultMinTitleLength     = 10
	DefaultMinContentLength   = 200
	DefaultMaxContentLength   = 50000
	DefaultMinContentKeywords = 2
)

// DefaultRequiredKeywords is the topical vocabulary used by the quality gate:
// horse, horse riding, competitions, breed, disease, nutrition.
var DefaultRequiredKeywords = []string{"اسب", "سوارکاری", "مسابقات", "نژاد", "بیماری", "تغذیه"}

func LoadConfig(path string) (*SpiderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*SpiderConfig, error) {
	var cfg SpiderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset value. A negative delay_ms disables host
// pacing; zero means "use the default".
func (c *SpiderConfig) SetDefaults() {
	if c.Logic.DelayMS == 0 {
		c.Logic.DelayMS = DefaultDelayMS
	}
	if c.Logic.TimeoutSec <= 0 {
		c.Logic.TimeoutSec = DefaultTimeoutSec
	}
	if c.Logic.ImageTimeoutSec <= 0 {
		c.Logic.ImageTimeoutSec = DefaultImageTimeoutSec
	}
	if c.Logic.MaxRetries < 0 {
		c.Logic.MaxRetries = 0
	} else if c.Logic.MaxRetries == 0 {
		c.Logic.MaxRetries = DefaultMaxRetries
	}
	if c.Logic.MaxConcurrentWorkers <= 0 {
		c.Logic.MaxConcurrentWorkers = DefaultMaxConcurrentWorkers
	}
	if c.Logic.MaxURLsPerSite <= 0 {
		c.Logic.MaxURLsPerSite = DefaultMaxURLsPerSite
	}
	if c.Logic.MaxImagesPerRecord <= 0 {
		c.Logic.MaxImagesPerRecord = DefaultMaxImagesPerRecord
	}
	if c.Logic.UserAgent == "" {
		c.Logic.UserAgent = DefaultUserAgent
	}
	if c.Logic.Fetcher == "" {
		c.Logic.Fetcher = FetcherHTTP
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = DefaultOutputDir
	}
	if c.DB.Collections.Posts == "" {
		c.DB.Collections.Posts = DefaultPostsCollection
	}

	v := &c.Validation
	if v.MinTitleLength <= 0 {
		v.MinTitleLength = DefaultMinTitleLength
	}
	if v.MinContentLength <= 0 {
		v.MinContentLength = DefaultMinContentLength
	}
	if v.MaxContentLength <= 0 {
		v.MaxContentLength = DefaultMaxContentLength
	}
	if v.MinContentKeywords <= 0 {
		v.MinContentKeywords = DefaultMinContentKeywords
	}
	if len(v.RequiredKeywords) == 0 {
		v.RequiredKeywords = append([]string(nil), DefaultRequiredKeywords...)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	for i := range c.Sites {
		if c.Sites[i].Name == "" {
			c.Sites[i].Name = c.Sites[i].BaseURL
		}
	}
}

func (c *SpiderConfig) Validate() error {
	switch c.Logic.Fetcher {
	case FetcherHTTP, FetcherColly:
	default:
		return fmt.Errorf("unknown fetcher %q", c.Logic.Fetcher)
	}

	switch c.DB.Driver {
	case DriverNone:
	case DriverMongo, DriverPostgres, DriverSQLite:
		if c.DB.Connection == "" {
			return fmt.Errorf("db driver %q requires a connection string", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}

	if c.Validation.MinContentLength > c.Validation.MaxContentLength {
		return errors.New("validation.min_content_length exceeds max_content_length")
	}

	for i, site := range c.Sites {
		if site.BaseURL == "" {
			return fmt.Errorf("site #%d has no base_url", i)
		}
	}
	return nil
}

func (c *SpiderConfig) DataDir() string {
	return filepath.Join(c.Storage.OutputDir, "data")
}

// Delay is the minimum interval between two requests to the same host.
func (l LogicConfig) Delay() time.Duration {
	if l.DelayMS < 0 {
		return 0
	}
	return time.Duration(l.DelayMS) * time.Millisecond
}

func (l LogicConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

func (l LogicConfig) ImageTimeout() time.Duration {
	return time.Duration(l.ImageTimeoutSec) * time.Second
}
