package api

import (
	"time"

	"surveyfit/adapters/excel"
)

// SourceConfig holds configuration for a remote respondent table
type SourceConfig struct {
	URL         string            `json:"url"`
	Format      string            `json:"format"`       // csv, json, xlsx; empty means detect
	RecordsPath string            `json:"records_path"` // gjson path to the record array
	Headers     map[string]string `json:"headers"`
	Timeout     time.Duration     `json:"timeout"`
	Retries     int               `json:"retries"` // extra attempts after the first
	Backoff     time.Duration     `json:"backoff"` // first retry delay, doubled each time
	MaxBackoff  time.Duration     `json:"max_backoff"`
	Reader      excel.ReaderConfig
}

// DefaultSourceConfig returns sensible defaults for fetching survey exports
func DefaultSourceConfig(url string) SourceConfig {
	return SourceConfig{
		URL:        url,
		Timeout:    30 * time.Second,
		Retries:    3,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Reader:     excel.DefaultReaderConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *SourceConfig) Validate() error {
	if c.URL == "" {
		return &ValidationError{Field: "URL", Message: "is required"}
	}
	if c.Timeout <= 0 {
		return &ValidationError{Field: "Timeout", Message: "must be positive"}
	}
	if c.Retries < 0 {
		return &ValidationError{Field: "Retries", Message: "cannot be negative"}
	}
	switch c.Format {
	case "", "csv", "json", "xlsx":
	default:
		return &ValidationError{Field: "Format", Message: "must be csv, json or xlsx"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
