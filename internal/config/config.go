// Package config loads the cdflow configuration file and its environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/peteski22/cdflow/internal/logging"
)

const (
	// EnvNationBuilderClientID overrides nationbuilder.client_id.
	EnvNationBuilderClientID = "CDFLOW_NB_CLIENT_ID"

	// EnvNationBuilderClientSecret overrides nationbuilder.client_secret.
	EnvNationBuilderClientSecret = "CDFLOW_NB_CLIENT_SECRET"

	// EnvNationBuilderSlug overrides nationbuilder.slug.
	EnvNationBuilderSlug = "CDFLOW_NB_SLUG"
)

const (
	defaultBatchSize         = 10
	defaultBufferAfter       = 10
	defaultCallbackPort      = 8080
	defaultConsoleLevel      = "info"
	defaultFileLevel         = "debug"
	defaultImportType        = "CanadaHelps"
	defaultMaxWindow         = 30
	defaultRequestsPerSecond = 2.0
)

// NationBuilder holds NationBuilder API settings.
type NationBuilder struct {
	// CallbackPort is the local port for the OAuth redirect. Default is 8080.
	CallbackPort int `yaml:"callback_port"`

	// ClientID is the OAuth application's client id.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the OAuth application's client secret.
	ClientSecret string `yaml:"client_secret"`

	// Slug is the nation's subdomain on nationbuilder.com.
	Slug string `yaml:"slug"`

	// SSMParameterPrefix, when set, is where the client id and secret are read from
	// Parameter Store instead of this file.
	SSMParameterPrefix string `yaml:"ssm_parameter_prefix"`
}

// RedirectURI returns the OAuth callback URL.
func (n NationBuilder) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", n.CallbackPort)
}

// Import holds import settings.
type Import struct {
	// BatchSize is the number of rows sent before pacing applies. Default is 10.
	BatchSize int `yaml:"batch_size"`

	// CheckDuplicates searches NationBuilder for an existing donation before creating one.
	CheckDuplicates bool `yaml:"check_duplicates"`

	// File is the default input file.
	File string `yaml:"file"`

	// RequestsPerSecond paces API calls. Default is 2.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Timezone is the IANA zone for source times without one. Defaults to the local zone.
	Timezone string `yaml:"timezone"`

	// Type is the default import type. Default is CanadaHelps.
	Type string `yaml:"type"`
}

// Location returns the import time zone.
func (i Import) Location() (*time.Location, error) {
	if i.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", i.Timezone, err)
	}
	return loc, nil
}

// Paths holds file system locations. Relative paths and ~ are expanded when loaded.
type Paths struct {
	// Jobs is where job files are kept.
	Jobs string `yaml:"jobs"`

	// Logs is where application and import logs are written.
	Logs string `yaml:"logs"`

	// Output is where success, fail and rollback files are written.
	Output string `yaml:"output"`

	// Plugins holds the Lua plugin files.
	Plugins string `yaml:"plugins"`

	// Token is the local token file, used unless a token secret is configured.
	Token string `yaml:"token"`
}

// Logging holds log settings.
type Logging struct {
	// BufferAfterSeconds extends import log extraction past the job's end. Default is 10.
	BufferAfterSeconds int `yaml:"buffer_after_seconds"`

	// ConsoleLevel is the console log level. Default is info.
	ConsoleLevel string `yaml:"console_level"`

	// FileLevel is the application log file level. Default is debug.
	FileLevel string `yaml:"file_level"`

	// MaxWindowMinutes caps import log extraction. Default is 30.
	MaxWindowMinutes int `yaml:"max_window_minutes"`
}

// Storage holds optional AWS storage settings.
type Storage struct {
	// ArchivePrefix is the S3 key prefix for archived job files.
	ArchivePrefix string `yaml:"archive_prefix"`

	// LedgerTable is the DynamoDB table recording imported check numbers.
	LedgerTable string `yaml:"ledger_table"`

	// S3Bucket receives job files when set.
	S3Bucket string `yaml:"s3_bucket"`

	// TokenSecretID is the Secrets Manager secret holding the OAuth token. When set it is
	// used instead of the local token file.
	TokenSecretID string `yaml:"token_secret_id"`
}

// Settings holds all configuration for the application.
type Settings struct {
	// Import contains import settings.
	Import Import `yaml:"import"`

	// ImportLogPatterns select the lines of an import's log.
	ImportLogPatterns logging.Patterns `yaml:"import_log_patterns"`

	// Logging contains log settings.
	Logging Logging `yaml:"logging"`

	// NationBuilder contains NationBuilder API settings.
	NationBuilder NationBuilder `yaml:"nationbuilder"`

	// Paths contains file system locations.
	Paths Paths `yaml:"paths"`

	// Storage contains AWS storage settings.
	Storage Storage `yaml:"storage"`
}

// Load reads the configuration file at path, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run 'cdflow init' to create)", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	s.applyEnv()
	if err := s.applyDefaults(); err != nil {
		return nil, err
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &s, nil
}

// LoadDotEnv loads variables from the .env file at path into the environment without
// replacing variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (s *Settings) applyEnv() {
	s.NationBuilder.ClientID = envOrDefault(EnvNationBuilderClientID, s.NationBuilder.ClientID)
	s.NationBuilder.ClientSecret = envOrDefault(EnvNationBuilderClientSecret, s.NationBuilder.ClientSecret)
	s.NationBuilder.Slug = envOrDefault(EnvNationBuilderSlug, s.NationBuilder.Slug)
}

func (s *Settings) applyDefaults() error {
	if s.NationBuilder.CallbackPort == 0 {
		s.NationBuilder.CallbackPort = defaultCallbackPort
	}

	if s.Import.BatchSize == 0 {
		s.Import.BatchSize = defaultBatchSize
	}
	if s.Import.RequestsPerSecond == 0 {
		s.Import.RequestsPerSecond = defaultRequestsPerSecond
	}
	if s.Import.Type == "" {
		s.Import.Type = defaultImportType
	}

	if s.Logging.BufferAfterSeconds == 0 {
		s.Logging.BufferAfterSeconds = defaultBufferAfter
	}
	if s.Logging.ConsoleLevel == "" {
		s.Logging.ConsoleLevel = defaultConsoleLevel
	}
	if s.Logging.FileLevel == "" {
		s.Logging.FileLevel = defaultFileLevel
	}
	if s.Logging.MaxWindowMinutes == 0 {
		s.Logging.MaxWindowMinutes = defaultMaxWindow
	}

	return s.Paths.resolve()
}

func (s *Settings) validate() error {
	var errs []error

	if s.NationBuilder.Slug == "" {
		errs = append(errs, fmt.Errorf("nationbuilder.slug is required (or set %s)", EnvNationBuilderSlug))
	}
	if s.NationBuilder.SSMParameterPrefix == "" {
		if s.NationBuilder.ClientID == "" {
			errs = append(errs, fmt.Errorf("nationbuilder.client_id is required (or set %s)", EnvNationBuilderClientID))
		}
		if s.NationBuilder.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("nationbuilder.client_secret is required (or set %s)", EnvNationBuilderClientSecret))
		}
	}
	if s.NationBuilder.CallbackPort < 1 || s.NationBuilder.CallbackPort > 65535 {
		errs = append(errs, fmt.Errorf("nationbuilder.callback_port must be between 1 and 65535, got %d", s.NationBuilder.CallbackPort))
	}

	if s.Import.BatchSize < 0 {
		errs = append(errs, errors.New("import.batch_size must not be negative"))
	}
	if s.Import.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("import.requests_per_second must not be negative"))
	}
	if _, err := s.Import.Location(); err != nil {
		errs = append(errs, fmt.Errorf("import.timezone: %w", err))
	}

	if _, err := logging.ParseLevel(s.Logging.ConsoleLevel); err != nil {
		errs = append(errs, fmt.Errorf("logging.console_level: %w", err))
	}
	if _, err := logging.ParseLevel(s.Logging.FileLevel); err != nil {
		errs = append(errs, fmt.Errorf("logging.file_level: %w", err))
	}

	return errors.Join(errs...)
}

// BufferAfter returns the import log extraction buffer.
func (l Logging) BufferAfter() time.Duration {
	return time.Duration(l.BufferAfterSeconds) * time.Second
}

// MaxWindow returns the import log extraction cap.
func (l Logging) MaxWindow() time.Duration {
	return time.Duration(l.MaxWindowMinutes) * time.Minute
}

func envOrDefault(key string, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
