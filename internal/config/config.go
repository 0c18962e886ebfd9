// Package config loads process configuration from, in increasing priority,
// defaults, an optional config file, a .env file, LITTER_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/litter-report/internal/geo"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LITTER_PORT or
// LITTER_DRAFTS_BACKEND.
const EnvPrefix = "LITTER"

// Config is the full process configuration.
type Config struct {
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	RegionFile string `mapstructure:"region_file"`

	AWS        AWSConfig        `mapstructure:"aws"`
	Drafts     DraftsConfig     `mapstructure:"drafts"`
	Photos     PhotosConfig     `mapstructure:"photos"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Geocoder   GeocoderConfig   `mapstructure:"geocoder"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Camera     CameraConfig     `mapstructure:"camera"`
}

// AWSConfig overrides SDK defaults. Endpoints target local emulators.
type AWSConfig struct {
	Region         string `mapstructure:"region"`
	DynamoEndpoint string `mapstructure:"dynamo_endpoint" validate:"omitempty,url"`
	S3Endpoint     string `mapstructure:"s3_endpoint" validate:"omitempty,url"`
}

// DraftsConfig selects the draft persistence backend.
type DraftsConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=memory sqlite dynamodb"`
	Key         string `mapstructure:"key" validate:"required"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
	DynamoTable string `mapstructure:"dynamo_table" validate:"required_if=Backend dynamodb"`
}

// PhotosConfig selects the photo blob store.
type PhotosConfig struct {
	Backend string      `mapstructure:"backend" validate:"oneof=memory disk s3 minio"`
	Dir     string      `mapstructure:"dir" validate:"required_if=Backend disk"`
	Bucket  string      `mapstructure:"bucket" validate:"required_if=Backend s3,required_if=Backend minio"`
	Prefix  string      `mapstructure:"prefix"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig holds self-hosted object storage credentials.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ClassifierConfig selects the photo classifier.
type ClassifierConfig struct {
	Provider       string        `mapstructure:"provider" validate:"oneof=none gemini http"`
	Model          string        `mapstructure:"model"`
	URL            string        `mapstructure:"url" validate:"omitempty,url"`
	Categories     []string      `mapstructure:"categories"`
	GeminiKeyParam string        `mapstructure:"gemini_key_param"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// GeocoderConfig configures Nominatim.
type GeocoderConfig struct {
	URL       string `mapstructure:"url" validate:"required,url"`
	UserAgent string `mapstructure:"user_agent" validate:"required"`
	CacheSize int    `mapstructure:"cache_size" validate:"min=0"`
}

// SubmissionConfig points at the reporting backend. BaseURL has no default;
// only the web server needs it, and it refuses to start without one.
type SubmissionConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CameraConfig selects the capture device. StillImage serves a fixed picture
// as the camera; empty means no camera.
type CameraConfig struct {
	StillImage string `mapstructure:"still_image"`
}

var defaults = map[string]interface{}{
	"log_level":                   "info",
	"port":                        8080,
	"region_file":                 "",
	"aws.region":                  "",
	"aws.dynamo_endpoint":         "",
	"aws.s3_endpoint":             "",
	"drafts.backend":              "sqlite",
	"drafts.key":                  "current",
	"drafts.sqlite_path":          "litter-report.db",
	"drafts.dynamo_table":         "",
	"photos.backend":              "disk",
	"photos.dir":                  "photos",
	"photos.bucket":               "",
	"photos.prefix":               "",
	"photos.minio.endpoint":       "",
	"photos.minio.access_key":     "",
	"photos.minio.secret_key":     "",
	"photos.minio.use_ssl":        false,
	"classifier.provider":         "none",
	"classifier.model":            "",
	"classifier.url":              "",
	"classifier.categories":       []string{},
	"classifier.gemini_key_param": "",
	"classifier.timeout":          60 * time.Second,
	"geocoder.url":                geo.DefaultNominatimURL,
	"geocoder.user_agent":         geo.DefaultUserAgent,
	"geocoder.cache_size":         geo.DefaultReverseCacheSize,
	"submission.base_url":         "",
	"submission.timeout":          30 * time.Second,
	"camera.still_image":          "",
}

// Options control where Load looks.
type Options struct {
	// File is an optional config file (yaml, json or toml by extension).
	File string
	// DotEnv lists .env files; missing files are ignored. Defaults to ".env".
	DotEnv []string
	// Flags are bound by name after replacing "-" with "_" and the first
	// "_" group separator with "." (e.g. --drafts-backend -> drafts.backend).
	Flags *pflag.FlagSet
}

// Load builds and validates a Config.
func Load(opts Options) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == nil {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		// A missing .env is normal outside development.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := flagKey(f.Name)
			if _, known := defaults[key]; !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKey maps a flag name to its config key: "region-file" stays a top-level
// key, "drafts-backend" becomes "drafts.backend".
func flagKey(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	if _, ok := defaults[name]; ok {
		return name
	}
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i] + "." + name[i+1:]
	}
	return name
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared validator, also used for request input.
func Validator() *validator.Validate {
	return validate
}

// Validate checks field constraints and returns every failure at once.
func (c *Config) Validate() error {
	var msgs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.ActualTag()))
		}
	}
	if c.Classifier.Provider == "http" && c.Classifier.URL == "" {
		msgs = append(msgs, "Config.Classifier.URL: required for provider http")
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Region loads RegionFile, or the built-in region when it is empty.
func (c *Config) Region() (*geo.Region, error) {
	if c.RegionFile == "" {
		return geo.DefaultRegion(), nil
	}
	return geo.LoadRegion(c.RegionFile)
}
