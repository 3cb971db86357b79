package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint     string        `yaml:"endpoint"`
		AccessKey    string        `yaml:"accessKey"`
		SecretKey    string        `yaml:"secretKey"`
		BucketName   string        `yaml:"bucketName"`
		Region       string        `yaml:"region"`
		UseSSL       bool          `yaml:"useSSL"`
		SignedURLTTL time.Duration `yaml:"signedURLTTL"`
	} `yaml:"minio"`

	AI struct {
		BaseURL         string        `yaml:"baseURL"`
		APIKey          string        `yaml:"apiKey"`
		ValidationModel string        `yaml:"validationModel"`
		AnalysisModel   string        `yaml:"analysisModel"`
		Timeout         time.Duration `yaml:"timeout"`
		Breaker         Breaker       `yaml:"breaker"`
	} `yaml:"ai"`

	Retry struct {
		Storage        RetryPolicy `yaml:"storage"`
		Database       RetryPolicy `yaml:"database"`
		AI             RetryPolicy `yaml:"ai"`
		ClassifyErrors bool        `yaml:"classifyErrors"`
	} `yaml:"retry"`

	Upload struct {
		MaxBytes     int64    `yaml:"maxBytes"`
		AllowedTypes []string `yaml:"allowedTypes"`
	} `yaml:"upload"`

	Auth struct {
		// APIKeys maps user id to API key.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

type RetryPolicy struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	Backoff     string        `yaml:"backoff"` // linear | fixed
}

type Breaker struct {
	Enabled      bool          `yaml:"enabled"`
	MinRequests  uint32        `yaml:"minRequests"`
	FailureRatio float64       `yaml:"failureRatio"`
	OpenTimeout  time.Duration `yaml:"openTimeout"`
}

// Path returns CONFIG_PATH or the default config.yaml
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Load baca file config, isi default, override secret dari env, lalu validate
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
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
		// upload + two model calls with retries
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
		if c.Database.Driver == "postgres" {
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "xray-images"
	}
	if c.Minio.SignedURLTTL == 0 {
		c.Minio.SignedURLTTL = time.Hour
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60 * time.Second
	}
	if c.AI.Breaker.MinRequests == 0 {
		c.AI.Breaker.MinRequests = 5
	}
	if c.AI.Breaker.FailureRatio == 0 {
		c.AI.Breaker.FailureRatio = 0.6
	}
	if c.AI.Breaker.OpenTimeout == 0 {
		c.AI.Breaker.OpenTimeout = 30 * time.Second
	}
	c.Retry.Storage.defaults(3, time.Second)
	c.Retry.Database.defaults(3, 500*time.Millisecond)
	c.Retry.AI.defaults(3, 2*time.Second)
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 10 << 20
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = []string{"image/jpeg", "image/png", "image/jpg"}
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "consultations"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (p *RetryPolicy) defaults(attempts int, delay time.Duration) {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = attempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = delay
	}
	if p.Backoff == "" {
		p.Backoff = "linear"
	}
}

// secrets stay out of the yaml file in deployments
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"MEDISCAN_DB_PASSWORD":      &c.Database.Password,
		"MEDISCAN_AI_API_KEY":       &c.AI.APIKey,
		"MEDISCAN_MINIO_ACCESS_KEY": &c.Minio.AccessKey,
		"MEDISCAN_MINIO_SECRET_KEY": &c.Minio.SecretKey,
		"MEDISCAN_REDIS_URL":        &c.Redis.URL,
		"MEDISCAN_NATS_URL":         &c.NATS.URL,
	}
	for env, dst := range strs {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("MEDISCAN_SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEDISCAN_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("database.driver must be mysql or postgres, got %q", c.Database.Driver))
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		errs = append(errs, errors.New("database.host and database.name are required"))
	}
	if c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required"))
	}
	if c.AI.APIKey == "" {
		errs = append(errs, errors.New("ai.apiKey is required (or MEDISCAN_AI_API_KEY)"))
	}
	for name, p := range map[string]RetryPolicy{"storage": c.Retry.Storage, "database": c.Retry.Database, "ai": c.Retry.AI} {
		if p.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("retry.%s.maxAttempts must be at least 1", name))
		}
		if p.Backoff != "linear" && p.Backoff != "fixed" {
			errs = append(errs, fmt.Errorf("retry.%s.backoff must be linear or fixed", name))
		}
	}
	if c.AI.Breaker.FailureRatio <= 0 || c.AI.Breaker.FailureRatio > 1 {
		errs = append(errs, errors.New("ai.breaker.failureRatio must be in (0, 1]"))
	}
	return errors.Join(errs...)
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

// Helper untuk build DSN Postgres (lib/pq URL form)
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN returns the DSN for the configured driver
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.PostgresDSN()
	}
	return c.MySQLDSN()
}

// MigrateURL is the database URL golang-migrate expects. The mysql driver
// needs multiStatements to run multi-statement migration files.
func (c *Config) MigrateURL() string {
	if c.Database.Driver == "postgres" {
		return c.PostgresDSN()
	}
	return "mysql://" + c.MySQLDSN() + "&multiStatements=true"
}
