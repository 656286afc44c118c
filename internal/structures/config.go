package structures

import (
	"net/http"
	"time"
)

type CliFlags struct {
	ConfigPath string
	DebugMode  bool
}

type Route struct {
	Url     string
	Handler http.Handler
}

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode       uint32 `yaml:"mode" validate:"required|uint"`
	Dir        string `yaml:"dir" validate:"required|unixPath"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"required|in:sqlite,postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

type FetcherConfig struct {
	Timeout      time.Duration `yaml:"timeout" validate:"required|min:1"`
	MaxRetries   int           `yaml:"maxRetries"`
	BackoffBase  time.Duration `yaml:"backoffBase"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
	UserAgent    string        `yaml:"userAgent"`
}

type SchedulerConfig struct {
	CycleInterval    time.Duration `yaml:"cycleInterval" validate:"required|min:1"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	LeaseTime        time.Duration `yaml:"leaseTime"`
	FailureThreshold int           `yaml:"failureThreshold"`
	RetentionDays    int           `yaml:"retentionDays"`
	SnapshotDir      string        `yaml:"snapshotDir"`
}

type EmailChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SMSChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gatewayURL"`
	APIKey     string `yaml:"apiKey"`
	Sender     string `yaml:"sender"`
}

type NotifierConfig struct {
	Cooldown time.Duration      `yaml:"cooldown"`
	Email    EmailChannelConfig `yaml:"email"`
	SMS      SMSChannelConfig   `yaml:"sms"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName   string
	Debug     bool
	Path      string
	WebServer Server          `yaml:"webServer"`
	Storage   StorageConfig   `yaml:"storage"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Logger    LoggerConfig    `yaml:"logger"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ApplyDefaults fills optional fields the config file may omit.
func (c *Config) ApplyDefaults() {
	if c.Fetcher.Timeout == 0 {
		c.Fetcher.Timeout = 15 * time.Second
	}
	if c.Fetcher.MaxRetries == 0 {
		c.Fetcher.MaxRetries = 2
	}
	if c.Fetcher.BackoffBase == 0 {
		c.Fetcher.BackoffBase = 500 * time.Millisecond
	}
	if c.Fetcher.MaxBodyBytes == 0 {
		c.Fetcher.MaxBodyBytes = 5 << 20
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 10
	}
	if c.Scheduler.LeaseTime == 0 {
		// 2 x fetch timeout x attempts: an abandoned claim outlives the
		// slowest possible check before becoming reclaimable.
		c.Scheduler.LeaseTime = 2 * c.Fetcher.Timeout * time.Duration(c.Fetcher.MaxRetries+1)
	}
	if c.Scheduler.FailureThreshold == 0 {
		c.Scheduler.FailureThreshold = 5
	}
	if c.Scheduler.RetentionDays == 0 {
		c.Scheduler.RetentionDays = 90
	}
	if c.Notifier.Cooldown == 0 {
		c.Notifier.Cooldown = 24 * time.Hour
	}
}
