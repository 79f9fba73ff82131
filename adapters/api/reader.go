package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"surveyfit/adapters/excel"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/errors"
)

// HTTPSource fetches the respondent table over HTTP; it implements
// ports.TableSourcePort
type HTTPSource struct {
	config     SourceConfig
	httpClient *http.Client
	logger     *internal.Logger
}

// NewHTTPSource creates a source for the configured URL
func NewHTTPSource(config SourceConfig, logger *internal.Logger) *HTTPSource {
	return &HTTPSource{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.OrDefault("HTTPSource"),
	}
}

// WithClient replaces the HTTP client
func (s *HTTPSource) WithClient(client *http.Client) *HTTPSource {
	s.httpClient = client
	return s
}

// Describe names the source
func (s *HTTPSource) Describe() string {
	return ExportURL(s.config.URL)
}

// Fetch downloads and parses the table, retrying transient failures with
// exponential backoff.
func (s *HTTPSource) Fetch(ctx context.Context) (*survey.RawTable, error) {
	if err := s.config.Validate(); err != nil {
		return nil, errors.ConfigInvalidf(err, "invalid source configuration")
	}

	target := ExportURL(s.config.URL)
	if target != s.config.URL {
		s.logger.Debug("rewrote sheet URL to %s", target)
	}

	startTime := time.Now()
	body, contentType, err := s.fetchWithRetry(ctx, target)
	if err != nil {
		return nil, err
	}

	format := DetectFormat(s.config.Format, contentType, target)
	var table *survey.RawTable
	switch format {
	case "json":
		table, err = ParseRecords(body, s.config.RecordsPath, s.config.Reader)
	default:
		table, err = excel.ParseBytes(body, format, s.config.Reader)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("fetched %s table in %s (%d bytes, %d rows)",
		format, time.Since(startTime).Round(time.Millisecond), len(body), table.RowCount())
	return table, nil
}

// fetchWithRetry performs the GET, retrying network errors, 429 and 5xx
func (s *HTTPSource) fetchWithRetry(ctx context.Context, target string) ([]byte, string, error) {
	backoff := s.config.Backoff
	var lastErr error

	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("attempt %d/%d failed: %v; retrying in %s",
				attempt, s.config.Retries+1, lastErr, backoff)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if s.config.MaxBackoff > 0 && backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
		}

		body, contentType, retryable, err := s.fetchOnce(ctx, target)
		if err == nil {
			return body, contentType, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, "", errors.ExternalServiceError("table source", lastErr)
}

func (s *HTTPSource) fetchOnce(ctx context.Context, target string) ([]byte, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", isTransient(err), fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, "", retryable, fmt.Errorf("source returned status %d: %s", resp.StatusCode, snippet)
	}
	return body, resp.Header.Get("Content-Type"), false, nil
}

// isTransient reports whether a transport error is worth retrying
func isTransient(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return stderrors.As(err, &urlErr)
}

// ExportURL rewrites Google Sheets edit/view links to the CSV export link of
// the same sheet. Other URLs are returned unchanged.
func ExportURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "docs.google.com" || !strings.HasPrefix(u.Path, "/spreadsheets/d/") {
		return raw
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/spreadsheets/d/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return raw
	}
	if len(parts) > 1 && parts[1] == "export" {
		return raw
	}

	gid := u.Query().Get("gid")
	if gid == "" && strings.HasPrefix(u.Fragment, "gid=") {
		gid = strings.TrimPrefix(u.Fragment, "gid=")
	}

	export := fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv", parts[0])
	if gid != "" {
		export += "&gid=" + url.QueryEscape(gid)
	}
	return export
}

// DetectFormat picks the payload format: explicit setting, then content
// type, then URL. CSV is the fallback.
func DetectFormat(explicit, contentType, target string) string {
	if explicit != "" {
		return explicit
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return "json"
	case strings.Contains(ct, "spreadsheetml"):
		return "xlsx"
	case strings.Contains(ct, "csv"):
		return "csv"
	}
	if u, err := url.Parse(target); err == nil {
		if f := u.Query().Get("format"); f == "xlsx" || f == "csv" {
			return f
		}
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".json":
			return "json"
		case ".xlsx":
			return "xlsx"
		}
	}
	return "csv"
}

// ParseRecords turns a JSON array of flat objects into a table. Columns are
// the union of keys in first-seen document order; null and absent fields are
// missing; nested values keep their raw JSON text.
func ParseRecords(body []byte, recordsPath string, config excel.ReaderConfig) (*survey.RawTable, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.InvalidInput("response is not valid JSON")
	}

	result := gjson.ParseBytes(body)
	if recordsPath != "" {
		result = result.Get(recordsPath)
	}
	if !result.Exists() {
		return nil, errors.InvalidInput(fmt.Sprintf("records path '%s' not found in response", recordsPath))
	}
	if !result.IsArray() {
		return nil, errors.InvalidInput(fmt.Sprintf("records path '%s' is not an array", recordsPath))
	}

	var headers []string
	index := make(map[string]int)
	var records []map[string]gjson.Result

	for i, item := range result.Array() {
		if !item.IsObject() {
			return nil, errors.InvalidInput(fmt.Sprintf("record %d is not an object", i))
		}
		record := make(map[string]gjson.Result)
		item.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, ok := index[name]; !ok {
				index[name] = len(headers)
				headers = append(headers, name)
			}
			record[name] = value
			return true
		})
		records = append(records, record)
	}

	markers := make(map[string]struct{}, len(config.MissingMarkers))
	for _, m := range config.MissingMarkers {
		markers[m] = struct{}{}
	}

	rows := make([][]survey.Cell, len(records))
	for i, record := range records {
		row := make([]survey.Cell, len(headers))
		for j, name := range headers {
			value, ok := record[name]
			row[j] = recordCell(value, ok, markers)
		}
		rows[i] = row
	}
	return survey.NewRawTable(headers, rows), nil
}

func recordCell(value gjson.Result, present bool, markers map[string]struct{}) survey.Cell {
	if !present || value.Type == gjson.Null {
		return survey.MissingCell()
	}
	var text string
	switch value.Type {
	case gjson.String:
		text = value.String()
	case gjson.True:
		text = "True"
	case gjson.False:
		text = "False"
	default:
		text = value.Raw
	}
	if _, missing := markers[text]; missing {
		return survey.MissingCell()
	}
	return survey.NewCell(text)
}
