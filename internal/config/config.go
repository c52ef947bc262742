package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	LLM struct {
		Provider    string        `yaml:"provider"`
		APIKey      string        `yaml:"apiKey"`
		BaseURL     string        `yaml:"baseUrl"`
		Model       string        `yaml:"model"`
		Temperature float32       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
		// RequestsPerMinute paces outbound model calls across all sessions; 0 disables pacing.
		RequestsPerMinute int `yaml:"requestsPerMinute"`
	} `yaml:"llm"`

	Retry struct {
		MaxAttempts int           `yaml:"maxAttempts"`
		BaseDelay   time.Duration `yaml:"baseDelay"`
		MaxDelay    time.Duration `yaml:"maxDelay"`
		Jitter      float64       `yaml:"jitter"`
	} `yaml:"retry"`

	Storage struct {
		// Driver is sqlite, mysql or postgres.
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlitePath"`
	} `yaml:"storage"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool          `yaml:"enabled"`
		Endpoint   string        `yaml:"endpoint"`
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		PresignTTL time.Duration `yaml:"presignTTL"`
	} `yaml:"minio"`

	Discovery struct {
		HostSuffix string `yaml:"hostSuffix"`
		Limit      int    `yaml:"limit"`
	} `yaml:"discovery"`

	History struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"history"`

	Session struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"session"`

	Auth struct {
		// Keys maps API key to tenant. Empty disables authentication.
		Keys map[string]string `yaml:"keys"`
		// RequestsPerMinute per tenant and client IP.
		RequestsPerMinute int `yaml:"requestsPerMinute"`
	} `yaml:"auth"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`

	Report struct {
		FontPath string `yaml:"fontPath"`
	} `yaml:"report"`

	Fetch struct {
		Enabled  bool          `yaml:"enabled"`
		Timeout  time.Duration `yaml:"timeout"`
		MaxBytes int64         `yaml:"maxBytes"`
	} `yaml:"fetch"`
}

// Load baca file config.yaml, isi default, lalu override secret dari env.
// A missing file is not an error: defaults plus env are enough for a local run.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// analyses with retries can take minutes
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 64 << 20
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		if c.LLM.Provider == "openai" {
			c.LLM.Model = "gpt-4o-mini"
		} else {
			c.LLM.Model = "gemini-2.5-flash"
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120 * time.Second
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 16 * time.Second
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = 0.25
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/adguardian.db"
	}
	if c.Database.Port == 0 {
		switch c.Storage.Driver {
		case "postgres":
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "adguardian-evidence"
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}

	if c.Discovery.HostSuffix == "" {
		c.Discovery.HostSuffix = "qq.com"
	}
	if c.Discovery.Limit == 0 {
		c.Discovery.Limit = 10
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = 10
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 2 * time.Hour
	}
	if c.Auth.RequestsPerMinute == 0 {
		c.Auth.RequestsPerMinute = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 5 << 20
	}
}

// applyEnv lets secrets stay out of the yaml file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ADGUARD_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ADGUARD_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("ADGUARD_MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("storage.driver must be sqlite, mysql or postgres, got %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "openai":
	default:
		return fmt.Errorf("llm.provider must be gemini or openai, got %q", c.LLM.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return fmt.Errorf("retry.jitter must be in [0, 1)")
	}
	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1")
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		return fmt.Errorf("minio.endpoint is required when minio is enabled")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
