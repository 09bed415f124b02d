package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"reqtrace/core"
)

// EnvPrefix prefixes every environment override, e.g. REQTRACE_BACKEND_TOKEN.
const EnvPrefix = "REQTRACE"

// ConfigName is the config file base name searched in "." and "./config".
const ConfigName = "reqtrace"

// Config holds the application configuration
type Config struct {
	Backend struct {
		BaseURL           string        `mapstructure:"base_url"`
		Organization      string        `mapstructure:"organization"`
		Project           string        `mapstructure:"project"`
		Token             string        `mapstructure:"token"`
		APIVersion        string        `mapstructure:"api_version" validate:"required"`
		Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
		Burst             int           `mapstructure:"burst" validate:"min=1"`
		MaxRetries        int           `mapstructure:"max_retries" validate:"min=1,max=10"`
		BreakerFailures   int           `mapstructure:"breaker_failures" validate:"min=1"`
		BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown" validate:"gt=0"`
		// Snapshot replaces the HTTP backend with a recorded JSON/YAML document
		Snapshot string `mapstructure:"snapshot"`
	} `mapstructure:"backend"`

	Secrets struct {
		Provider string `mapstructure:"provider" validate:"oneof=env aws"`
		AWS      struct {
			Region   string `mapstructure:"region"`
			SecretID string `mapstructure:"secret_id"`
			Key      string `mapstructure:"key"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Fetch struct {
		MaxConcurrency int           `mapstructure:"max_concurrency" validate:"min=1,max=256"`
		Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
		BatchSize      int           `mapstructure:"batch_size" validate:"min=1,max=200"`
	} `mapstructure:"fetch"`

	Cache struct {
		TTL  time.Duration `mapstructure:"ttl" validate:"gte=0"`
		Size int           `mapstructure:"size" validate:"min=1"`
	} `mapstructure:"cache"`

	Relations struct {
		Requirement    []string `mapstructure:"requirement" validate:"min=1,dive,required"`
		TestedBy       []string `mapstructure:"tested_by" validate:"min=1,dive,required"`
		Defect         []string `mapstructure:"defect" validate:"min=1,dive,required"`
		ExcludedStates []string `mapstructure:"excluded_states"`
	} `mapstructure:"relations"`

	Fields core.FieldMap `mapstructure:"fields"`

	Extract struct {
		ExpandSuffixes bool          `mapstructure:"expand_suffixes"`
		RegexTimeout   time.Duration `mapstructure:"regex_timeout" validate:"gt=0"`
	} `mapstructure:"extract"`

	Tables struct {
		LocalRoot          string   `mapstructure:"local_root"`
		AllowedBuckets     []string `mapstructure:"allowed_buckets"`
		AllowedExtensions  []string `mapstructure:"allowed_extensions" validate:"min=1,dive,startswith=."`
		MaxBytes           int64    `mapstructure:"max_bytes" validate:"min=1"`
		S3Region           string   `mapstructure:"s3_region"`
		GCSCredentialsFile string   `mapstructure:"gcs_credentials_file"`
	} `mapstructure:"tables"`

	Report struct {
		CoverageSheet     string `mapstructure:"coverage_sheet" validate:"required"`
		ValidationSheet   string `mapstructure:"validation_sheet" validate:"required"`
		RequirementsQuery string `mapstructure:"requirements_query"`
	} `mapstructure:"report"`

	API struct {
		Host              string  `mapstructure:"host"`
		Port              int     `mapstructure:"port" validate:"min=1,max=65535"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
		Burst             int     `mapstructure:"burst" validate:"gte=0"`
	} `mapstructure:"api"`

	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.organization", "")
	v.SetDefault("backend.project", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.api_version", "7.1")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.requests_per_second", 20.0)
	v.SetDefault("backend.burst", 20)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.breaker_failures", 5)
	v.SetDefault("backend.breaker_cooldown", 30*time.Second)
	v.SetDefault("backend.snapshot", "")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.aws.region", "us-east-1")
	v.SetDefault("secrets.aws.secret_id", "reqtrace/backend")
	v.SetDefault("secrets.aws.key", "token")

	v.SetDefault("fetch.max_concurrency", 10)
	v.SetDefault("fetch.timeout", 60*time.Second)
	v.SetDefault("fetch.batch_size", 200)

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.size", 2048)

	v.SetDefault("relations.requirement", []string{"Microsoft.VSTS.Common.TestedBy-Reverse"})
	v.SetDefault("relations.tested_by", []string{"Microsoft.VSTS.Common.TestedBy-Forward"})
	v.SetDefault("relations.defect", []string{"System.LinkTypes.Related"})
	v.SetDefault("relations.excluded_states", []string{"Removed"})

	fields := core.DefaultFieldMap()
	v.SetDefault("fields.requirement_id", fields.RequirementID)
	v.SetDefault("fields.sub_system", fields.SubSystem)
	v.SetDefault("fields.sap_wbs", fields.SAPWBS)
	v.SetDefault("fields.steps", fields.Steps)
	v.SetDefault("fields.area_path", fields.AreaPath)
	v.SetDefault("fields.title", fields.Title)
	v.SetDefault("fields.work_item_type", fields.WorkItemType)
	v.SetDefault("fields.state", fields.State)
	v.SetDefault("fields.severity", fields.Severity)

	v.SetDefault("extract.expand_suffixes", true)
	v.SetDefault("extract.regex_timeout", 500*time.Millisecond)

	v.SetDefault("tables.local_root", ".")
	v.SetDefault("tables.allowed_buckets", []string{})
	v.SetDefault("tables.allowed_extensions", []string{".xlsx", ".csv"})
	v.SetDefault("tables.max_bytes", int64(20<<20))
	v.SetDefault("tables.s3_region", "us-east-1")
	v.SetDefault("tables.gcs_credentials_file", "")

	v.SetDefault("report.coverage_sheet", "Coverage")
	v.SetDefault("report.validation_sheet", "Internal Validation")
	v.SetDefault("report.requirements_query", "")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.requests_per_second", 5.0)
	v.SetDefault("api.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads the configuration. An explicit path must exist; otherwise
// reqtrace.yaml is searched in "." and "./config" and its absence is not an
// error. Environment variables override both.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with explicit key overrides, e.g. from CLI flags,
// applied above every other source. Empty string values are ignored.
func LoadWithOverrides(path string, overrides map[string]interface{}) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("backend.token"); err != nil {
		return nil, fmt.Errorf("failed to bind backend token: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		if str, ok := value.(string); ok && str == "" {
			continue
		}
		v.Set(key, value)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	config.resolvePaths()
	return &config, nil
}

var validate = validator.New()

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if config.Backend.Snapshot == "" {
		if config.Backend.BaseURL == "" {
			return fmt.Errorf("invalid config: backend.base_url is required unless backend.snapshot is set")
		}
		parsed, err := url.Parse(config.Backend.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid backend.base_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid backend.base_url: scheme must be http or https")
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid backend.base_url: missing host")
		}
		if config.Backend.Organization == "" || config.Backend.Project == "" {
			return fmt.Errorf("invalid config: backend.organization and backend.project are required")
		}
	}

	if config.Secrets.Provider == "aws" && config.Secrets.AWS.SecretID == "" {
		return fmt.Errorf("invalid config: secrets.aws.secret_id is required for the aws provider")
	}

	if config.Tables.GCSCredentialsFile != "" {
		if _, err := os.Stat(config.Tables.GCSCredentialsFile); err != nil {
			return fmt.Errorf("invalid tables.gcs_credentials_file: %w", err)
		}
	}

	for _, b := range config.Tables.AllowedBuckets {
		if strings.ContainsAny(b, "/ ") {
			return fmt.Errorf("invalid tables.allowed_buckets entry %q: bucket names cannot contain '/' or spaces", b)
		}
	}

	return nil
}

func (c *Config) resolvePaths() {
	if c.Tables.LocalRoot != "" {
		if abs, err := filepath.Abs(c.Tables.LocalRoot); err == nil {
			c.Tables.LocalRoot = abs
		}
	}
	for i, ext := range c.Tables.AllowedExtensions {
		c.Tables.AllowedExtensions[i] = strings.ToLower(ext)
	}
}

// Offline reports whether the backend is a recorded snapshot.
func (c *Config) Offline() bool {
	return c.Backend.Snapshot != ""
}

// Masked returns a copy with the backend token redacted, for logging.
func (c *Config) Masked() Config {
	out := *c
	if out.Backend.Token != "" {
		out.Backend.Token = "********"
	}
	return out
}
