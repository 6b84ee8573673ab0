package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}

	return fmt.Sprintf("configuration validation failed: %s", strings.Join(messages, "; "))
}

// Has checks if ValidationErrors contains any errors
func (ve ValidationErrors) Has() bool {
	return len(ve) > 0
}

const (
	maxPPI          = 65535
	minBufferRetain = 64 * 1024
)

var accentPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var validationErrors ValidationErrors

	validationErrors = append(validationErrors, c.validateEnvironment()...)
	validationErrors = append(validationErrors, c.validatePipeline()...)
	validationErrors = append(validationErrors, c.validateDisplay()...)
	validationErrors = append(validationErrors, c.validateDatabase()...)

	// Optional integrations are only checked when switched on
	if c.Storage.ArchiveEnabled {
		validationErrors = append(validationErrors, c.validateStorage()...)
	}
	if c.Cache.Enabled {
		validationErrors = append(validationErrors, c.validateCache()...)
	}

	if c.Logging != nil {
		validationErrors = append(validationErrors, c.validateLogging()...)
	}

	if validationErrors.Has() {
		return validationErrors
	}

	return nil
}

func (c *Config) validateEnvironment() ValidationErrors {
	var errors ValidationErrors

	if c.Environment != "" {
		validEnvs := []string{"development", "production", "test", "staging"}
		if !slices.Contains(validEnvs, c.Environment) {
			errors = append(errors, ValidationError{
				Field:   "environment",
				Value:   c.Environment,
				Message: "environment must be one of: development, production, test, staging",
			})
		}
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors
	p := c.Pipeline

	counts := []struct {
		field string
		value int
	}{
		{"pipeline.workers", p.Workers},
		{"pipeline.load_queue", p.LoadQueue},
		{"pipeline.commit_queue", p.CommitQueue},
	}
	for _, count := range counts {
		if count.value < 0 {
			errors = append(errors, ValidationError{
				Field:   count.field,
				Value:   count.value,
				Message: "must be a non-negative integer (0 selects the default)",
			})
		}
	}

	if p.BufferRetain < minBufferRetain {
		errors = append(errors, ValidationError{
			Field:   "pipeline.buffer_retain",
			Value:   p.BufferRetain,
			Message: fmt.Sprintf("buffer retain limit must be at least %d bytes", minBufferRetain),
		})
	}

	if p.DefaultPPI < 1 || p.DefaultPPI > maxPPI {
		errors = append(errors, ValidationError{
			Field:   "pipeline.default_ppi",
			Value:   p.DefaultPPI,
			Message: fmt.Sprintf("default PPI must be between 1 and %d", maxPPI),
		})
	}

	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.jpeg_quality",
			Value:   p.JPEGQuality,
			Message: "JPEG quality must be between 1 and 100",
		})
	}

	return errors
}

func (c *Config) validateDisplay() ValidationErrors {
	var errors ValidationErrors

	mode := strings.ToLower(c.Display.ColorMode)
	if mode != "" && !slices.Contains([]string{"auto", "always", "never"}, mode) {
		errors = append(errors, ValidationError{
			Field:   "display.color_mode",
			Value:   c.Display.ColorMode,
			Message: "color mode must be one of: auto, always, never",
		})
	}

	if c.Display.AccentColor != "" && !accentPattern.MatchString(c.Display.AccentColor) {
		errors = append(errors, ValidationError{
			Field:   "display.accent_color",
			Value:   c.Display.AccentColor,
			Message: "accent color must be formatted as #RRGGBB",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	// The run ledger is optional
	if c.DatabaseURL == "" {
		return errors
	}

	// Validate database URL format
	parsedURL, err := url.Parse(c.DatabaseURL)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "database_url",
			Value:   "[REDACTED]",
			Message: "database URL must be a valid URL",
		})
		return errors
	}

	// Check for required components
	if parsedURL.Scheme != "postgres" && parsedURL.Scheme != "postgresql" {
		errors = append(errors, ValidationError{
			Field:   "database_url",
			Value:   parsedURL.Scheme,
			Message: "database URL must use postgres or postgresql scheme",
		})
	}

	if parsedURL.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database_url",
			Value:   parsedURL.Redacted(),
			Message: "database URL must include host",
		})
	}

	if parsedURL.Path == "" || parsedURL.Path == "/" {
		errors = append(errors, ValidationError{
			Field:   "database_url",
			Value:   parsedURL.Redacted(),
			Message: "database URL must include database name",
		})
	}

	return errors
}

func (c *Config) validateStorage() ValidationErrors {
	var errors ValidationErrors

	// Validate endpoint
	if c.Storage.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.endpoint",
			Value:   c.Storage.Endpoint,
			Message: "storage endpoint cannot be empty",
		})
	}

	// Validate bucket name
	if c.Storage.BucketName == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.bucket_name",
			Value:   c.Storage.BucketName,
			Message: "storage bucket name cannot be empty",
		})
	} else if !isValidBucketName(c.Storage.BucketName) {
		errors = append(errors, ValidationError{
			Field:   "storage.bucket_name",
			Value:   c.Storage.BucketName,
			Message: "storage bucket name must be 3-63 characters, lowercase alphanumeric and hyphens only",
		})
	}

	// Validate access credentials for production environments
	if c.Environment == "production" {
		if c.Storage.AccessKeyID == "" || c.Storage.AccessKeyID == "minioadmin" {
			errors = append(errors, ValidationError{
				Field:   "storage.access_key_id",
				Value:   c.Storage.AccessKeyID,
				Message: "storage access key ID must be set for production environment",
			})
		}

		if c.Storage.SecretAccessKey == "" || c.Storage.SecretAccessKey == "minioadmin" {
			errors = append(errors, ValidationError{
				Field:   "storage.secret_access_key",
				Value:   "[REDACTED]",
				Message: "storage secret access key must be set for production environment",
			})
		}
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if c.Cache.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "cache.address",
			Value:   c.Cache.Address,
			Message: "redis address is required when the progress publisher is enabled",
		})
	}

	if c.Cache.Database < 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.database",
			Value:   c.Cache.Database,
			Message: "redis database index must be non-negative",
		})
	}

	if c.Cache.Channel == "" {
		errors = append(errors, ValidationError{
			Field:   "cache.channel",
			Value:   c.Cache.Channel,
			Message: "progress channel cannot be empty",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "logging level must be one of: debug, info, warn, error",
		})
	}

	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: "logging format must be either 'json' or 'console'",
		})
	}

	return errors
}

// isValidBucketName validates S3/MinIO bucket naming rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}

	// Must start and end with lowercase letter or number
	if !isLowerAlphaNum(name[0]) || !isLowerAlphaNum(name[len(name)-1]) {
		return false
	}

	for i, r := range name {
		if !isLowerAlphaNum(byte(r)) && r != '-' {
			return false
		}

		// No consecutive hyphens
		if i > 0 && r == '-' && name[i-1] == '-' {
			return false
		}
	}

	// Cannot be formatted as IP address (simplified check)
	parts := strings.Split(name, ".")
	if len(parts) == 4 {
		allNumbers := true
		for _, part := range parts {
			if _, err := strconv.Atoi(part); err != nil {
				allNumbers = false
				break
			}
		}
		if allNumbers {
			return false
		}
	}

	return true
}

func isLowerAlphaNum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
