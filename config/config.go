/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_SCHEDULER_ID        = "herald"
	DEFAULT_INTERVAL_MINUTES    = 5
	DEFAULT_MAX_ATTEMPTS        = 3
	DEFAULT_DISPATCH_QUEUE      = "herald_dispatch"
	DEFAULT_PROVIDER_BASE_URL   = "https://api.twitter.com"
	DEFAULT_PROVIDER_UPLOAD     = "https://upload.twitter.com"
	DEFAULT_METRICS_PORT        = "9464"
	DEFAULT_MONITORING_PORT     = "5004"
	DEFAULT_RATE_LIMIT_HEADER   = "x-rate-limit-reset"
	DEFAULT_RATE_LIMIT_WAITS    = 3
	DEFAULT_LOCK_TTL            = 10 * time.Minute
	DEFAULT_BASE_RETRY_DELAY    = 2 * time.Second
	DEFAULT_SAFETY_MARGIN       = 2 * time.Second
	DEFAULT_MAX_RATE_LIMIT_WAIT = 15 * time.Minute
	DEFAULT_USER_ID_CACHE_TTL   = 6 * time.Hour
	DEFAULT_REQUEST_TIMEOUT     = 30 * time.Second
)

// ConfigStore holds the loaded *Configuration.
var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"HERALD_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"HERALD_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"HERALD_REDIS_SKIP_TLS_VERIFY"`
}

type ProviderConfig struct {
	BaseURL         string        `json:"base_url" envconfig:"HERALD_PROVIDER_BASE_URL"`
	UploadURL       string        `json:"upload_url" envconfig:"HERALD_PROVIDER_UPLOAD_URL"`
	RequestTimeout  time.Duration `json:"request_timeout" envconfig:"HERALD_PROVIDER_REQUEST_TIMEOUT"`
	RateLimitHeader string        `json:"rate_limit_header" envconfig:"HERALD_PROVIDER_RATE_LIMIT_HEADER"`
	UserIDCacheTTL  time.Duration `json:"user_id_cache_ttl" envconfig:"HERALD_PROVIDER_USER_ID_CACHE_TTL"`
}

// SchedulerConfig tunes the dispatch pass and the transport retries it performs.
type SchedulerConfig struct {
	ID                     string        `json:"id" envconfig:"HERALD_SCHEDULER_ID"`
	DefaultIntervalMinutes int           `json:"default_interval_minutes" envconfig:"HERALD_SCHEDULER_DEFAULT_INTERVAL_MINUTES"`
	LockTTL                time.Duration `json:"lock_ttl" envconfig:"HERALD_SCHEDULER_LOCK_TTL"`
	MaxAttempts            int           `json:"max_attempts" envconfig:"HERALD_SCHEDULER_MAX_ATTEMPTS"`
	BaseRetryDelay         time.Duration `json:"base_retry_delay" envconfig:"HERALD_SCHEDULER_BASE_RETRY_DELAY"`
	RateLimitSafetyMargin  time.Duration `json:"rate_limit_safety_margin" envconfig:"HERALD_SCHEDULER_RATE_LIMIT_SAFETY_MARGIN"`
	MaxRateLimitWaits      int           `json:"max_rate_limit_waits" envconfig:"HERALD_SCHEDULER_MAX_RATE_LIMIT_WAITS"`
	MaxRateLimitWait       time.Duration `json:"max_rate_limit_wait" envconfig:"HERALD_SCHEDULER_MAX_RATE_LIMIT_WAIT"`
	PassTimeout            time.Duration `json:"pass_timeout" envconfig:"HERALD_SCHEDULER_PASS_TIMEOUT"`
	Queue                  string        `json:"queue" envconfig:"HERALD_SCHEDULER_QUEUE"`
	MonitoringPort         string        `json:"monitoring_port" envconfig:"HERALD_SCHEDULER_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"HERALD_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

// Configuration is the full herald configuration.
type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"HERALD_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"HERALD_ENABLE_TELEMETRY"`
	MetricsPort     string           `json:"metrics_port" envconfig:"HERALD_METRICS_PORT"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Provider        ProviderConfig   `json:"provider"`
	Scheduler       SchedulerConfig  `json:"scheduler"`
	Notification    Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("herald", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

// InitConfig routes the std logger through logrus and loads configFile.
func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

// Fetch returns the loaded configuration.
func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called herald.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Herald"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Scheduler.ID = strings.TrimSpace(cnf.Scheduler.ID)

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.MetricsPort == "" {
		cnf.MetricsPort = DEFAULT_METRICS_PORT
	}

	cnf.Provider.addDefaults()
	return cnf.Scheduler.validateAndAddDefaults()
}

func (p *ProviderConfig) addDefaults() {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.UploadURL = strings.TrimRight(strings.TrimSpace(p.UploadURL), "/")

	if p.BaseURL == "" {
		p.BaseURL = DEFAULT_PROVIDER_BASE_URL
	}
	if p.UploadURL == "" {
		p.UploadURL = DEFAULT_PROVIDER_UPLOAD
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = DEFAULT_REQUEST_TIMEOUT
	}
	if p.RateLimitHeader == "" {
		p.RateLimitHeader = DEFAULT_RATE_LIMIT_HEADER
	}
	if p.UserIDCacheTTL <= 0 {
		p.UserIDCacheTTL = DEFAULT_USER_ID_CACHE_TTL
	}
}

func (s *SchedulerConfig) validateAndAddDefaults() error {
	if s.ID == "" {
		s.ID = DEFAULT_SCHEDULER_ID
	}
	if s.DefaultIntervalMinutes <= 0 {
		s.DefaultIntervalMinutes = DEFAULT_INTERVAL_MINUTES
	}
	if s.LockTTL <= 0 {
		s.LockTTL = DEFAULT_LOCK_TTL
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DEFAULT_MAX_ATTEMPTS
	}
	if s.BaseRetryDelay <= 0 {
		s.BaseRetryDelay = DEFAULT_BASE_RETRY_DELAY
	}
	if s.RateLimitSafetyMargin <= 0 {
		s.RateLimitSafetyMargin = DEFAULT_SAFETY_MARGIN
	}
	if s.MaxRateLimitWaits < 0 {
		s.MaxRateLimitWaits = 0
	} else if s.MaxRateLimitWaits == 0 {
		s.MaxRateLimitWaits = DEFAULT_RATE_LIMIT_WAITS
	}
	if s.MaxRateLimitWait <= 0 {
		s.MaxRateLimitWait = DEFAULT_MAX_RATE_LIMIT_WAIT
	}
	// zero leaves the pass deadline to the caller
	if s.PassTimeout < 0 {
		s.PassTimeout = 0
	}
	if s.PassTimeout > 0 && s.PassTimeout < s.MaxRateLimitWait {
		log.Printf("Warning: pass timeout %s is shorter than the max rate limit wait %s, raising it", s.PassTimeout, s.MaxRateLimitWait)
		s.PassTimeout = s.MaxRateLimitWait
	}
	if s.Queue == "" {
		s.Queue = DEFAULT_DISPATCH_QUEUE
	}
	if s.MonitoringPort == "" {
		s.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	// A lock that expires mid-dispatch lets a concurrent pass pick the entry up again.
	if s.PassTimeout > 0 && s.LockTTL < s.PassTimeout {
		log.Printf("Warning: lock ttl %s is shorter than the pass timeout %s", s.LockTTL, s.PassTimeout)
	}
	return nil
}

// WithDefaults returns a copy of s with unset fields defaulted.
func (s SchedulerConfig) WithDefaults() SchedulerConfig {
	_ = s.validateAndAddDefaults()
	return s
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
