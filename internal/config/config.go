package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
	"surveyfit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Source   SourceConfig
	Study    Study
	Model    ModelConfig
	Report   ReportConfig
	LogLevel string
}

// SourceConfig describes where the respondent table comes from
type SourceConfig struct {
	URL         string // http(s) URL or local .csv/.xlsx path
	Format      string // csv, json or xlsx; empty means detect from URL
	RecordsPath string // gjson path to the record array for json sources
	Sheet       string // worksheet for xlsx sources; empty means first sheet
	Delimiter   rune
	Timeout     time.Duration
	Retries     int
	Backoff     time.Duration
}

// Study is the analysis definition: which columns play which role.
// It is usually read from a YAML file.
type Study struct {
	Name                 string                 `yaml:"name"`
	SourceURL            string                 `yaml:"source_url"`
	ControlColumns       []string               `yaml:"control_columns"`
	ExcludedColumns      []string               `yaml:"excluded_columns"`
	SplitIndicatorColumn string                 `yaml:"split_indicator_column"`
	OptimizerMethod      string                 `yaml:"optimizer_method"`
	MissingControlPolicy survey.MissingPolicy   `yaml:"missing_control_policy"`
	RegressorPolicy      survey.RegressorPolicy `yaml:"regressor_policy"`
	MissingMarkers       []string               `yaml:"missing_markers"`
}

// ModelConfig holds optimizer settings
type ModelConfig struct {
	Method            string
	MaxIterations     int
	GradientTolerance float64
	Workers           int
}

// ReportConfig holds output settings
type ReportConfig struct {
	Dir     string
	Formats []string
}

// Supported values
var (
	OptimizerMethods = []string{"lbfgs", "bfgs", "cg", "nm", "neldermead"}
	ReportFormats    = []string{"text", "json", "xlsx", "html"}
)

// DefaultMissingMarkers are the cell texts spreadsheet exports use for "no value"
var DefaultMissingMarkers = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// Default returns a configuration with every optional setting filled in
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Delimiter: ',',
			Timeout:   30 * time.Second,
			Retries:   3,
			Backoff:   500 * time.Millisecond,
		},
		Study: Study{
			Name:                 "survey",
			OptimizerMethod:      "lbfgs",
			MissingControlPolicy: survey.MissingAsZero,
			RegressorPolicy:      survey.RegressAllColumns,
			MissingMarkers:       DefaultMissingMarkers,
		},
		Model: ModelConfig{
			Method:            "lbfgs",
			MaxIterations:     500,
			GradientTolerance: 1e-6,
			Workers:           1,
		},
		Report: ReportConfig{
			Dir:     "reports",
			Formats: []string{"text", "json"},
		},
		LogLevel: "INFO",
	}
}

// Load builds the configuration: defaults, then the study file (if any),
// then environment variables. CLI flags are applied by the caller afterwards.
func Load(studyFile string) (*Config, error) {
	config := Default()

	if studyFile == "" {
		studyFile = os.Getenv("STUDY_FILE")
	}
	if studyFile != "" {
		study, err := LoadStudy(studyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load study definition")
		}
		config.applyStudy(study)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// LoadStudy reads a YAML study definition
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigInvalidf(err, "cannot read study file %s", path)
	}
	return ParseStudy(data)
}

// ParseStudy decodes a YAML study definition
func ParseStudy(data []byte) (*Study, error) {
	var study Study
	if err := yaml.Unmarshal(data, &study); err != nil {
		return nil, errors.ConfigInvalidf(err, "invalid study definition")
	}
	return &study, nil
}

func (c *Config) applyStudy(study *Study) {
	if study.Name != "" {
		c.Study.Name = study.Name
	}
	if study.SourceURL != "" {
		c.Study.SourceURL = study.SourceURL
		c.Source.URL = study.SourceURL
	}
	c.Study.ControlColumns = study.ControlColumns
	c.Study.ExcludedColumns = study.ExcludedColumns
	c.Study.SplitIndicatorColumn = study.SplitIndicatorColumn
	if study.OptimizerMethod != "" {
		c.SetOptimizerMethod(study.OptimizerMethod)
	}
	if study.MissingControlPolicy != "" {
		c.Study.MissingControlPolicy = study.MissingControlPolicy
	}
	if study.RegressorPolicy != "" {
		c.Study.RegressorPolicy = study.RegressorPolicy
	}
	if study.MissingMarkers != nil {
		c.Study.MissingMarkers = study.MissingMarkers
	}
}

func (c *Config) applyEnv() {
	c.Source.URL = getEnvOrDefault("SOURCE_URL", c.Source.URL)
	c.Source.Format = strings.ToLower(getEnvOrDefault("SOURCE_FORMAT", c.Source.Format))
	c.Source.RecordsPath = getEnvOrDefault("SOURCE_RECORDS_PATH", c.Source.RecordsPath)
	c.Source.Sheet = getEnvOrDefault("SOURCE_SHEET", c.Source.Sheet)
	c.Source.Timeout = getEnvDurationOrDefault("FETCH_TIMEOUT", c.Source.Timeout)
	c.Source.Retries = getEnvIntOrDefault("FETCH_RETRIES", c.Source.Retries)
	c.Source.Backoff = getEnvDurationOrDefault("FETCH_BACKOFF", c.Source.Backoff)

	if method := os.Getenv("OPTIMIZER_METHOD"); method != "" {
		c.SetOptimizerMethod(method)
	}
	c.Model.MaxIterations = getEnvIntOrDefault("MAX_ITERATIONS", c.Model.MaxIterations)
	c.Model.GradientTolerance = getEnvFloatOrDefault("GRADIENT_TOLERANCE", c.Model.GradientTolerance)
	c.Model.Workers = getEnvIntOrDefault("WORKERS", c.Model.Workers)

	c.Report.Dir = getEnvOrDefault("REPORT_DIR", c.Report.Dir)
	if formats := os.Getenv("REPORT_FORMATS"); formats != "" {
		c.Report.Formats = SplitList(formats)
	}
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
}

// SetOptimizerMethod keeps the study and model copies of the method in sync
func (c *Config) SetOptimizerMethod(method string) {
	method = strings.ToLower(strings.TrimSpace(method))
	c.Study.OptimizerMethod = method
	c.Model.Method = method
}

// Validate checks option values. Column existence is checked later against
// the fetched table.
func (c *Config) Validate() error {
	if len(c.Study.ControlColumns) == 0 {
		return errors.ConfigInvalid("control_columns must list at least one column")
	}
	seen := make(map[string]bool, len(c.Study.ControlColumns))
	for _, name := range c.Study.ControlColumns {
		if seen[name] {
			return errors.ConfigInvalidf(core.ErrDuplicateColumn, "control column %q listed twice", name)
		}
		seen[name] = true
	}
	if !contains(OptimizerMethods, c.Model.Method) {
		return errors.ConfigInvalid(fmt.Sprintf("unknown optimizer_method %q (want one of %s)",
			c.Model.Method, strings.Join(OptimizerMethods, ", ")))
	}
	switch c.Study.MissingControlPolicy {
	case survey.MissingAsZero, survey.MissingAsMissing:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown missing_control_policy %q", c.Study.MissingControlPolicy))
	}
	switch c.Study.RegressorPolicy {
	case survey.RegressAllColumns, survey.RegressControlsOnly:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown regressor_policy %q", c.Study.RegressorPolicy))
	}
	if c.Model.Workers < 1 {
		return errors.ConfigInvalid("WORKERS must be at least 1")
	}
	if c.Model.MaxIterations < 1 {
		return errors.ConfigInvalid("MAX_ITERATIONS must be at least 1")
	}
	if c.Source.Retries < 0 {
		return errors.ConfigInvalid("FETCH_RETRIES cannot be negative")
	}
	for _, f := range c.Report.Formats {
		if !contains(ReportFormats, f) {
			return errors.ConfigInvalid(fmt.Sprintf("unknown report format %q", f))
		}
	}
	return nil
}

// SplitList parses a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
