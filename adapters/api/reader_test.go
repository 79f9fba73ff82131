package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyfit/internal"
	"surveyfit/internal/errors"
)

func quietLogger() *internal.Logger {
	return internal.NewLogger(internal.LogLevelError)
}

func testConfig(url string) SourceConfig {
	config := DefaultSourceConfig(url)
	config.Backoff = time.Millisecond
	config.MaxBackoff = 5 * time.Millisecond
	return config
}

func TestExportURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "edit link with gid fragment",
			in:   "https://docs.google.com/spreadsheets/d/abc123/edit#gid=42",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=42",
		},
		{
			name: "edit link with gid query",
			in:   "https://docs.google.com/spreadsheets/d/abc123/edit?gid=7",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv&gid=7",
		},
		{
			name: "bare sheet link",
			in:   "https://docs.google.com/spreadsheets/d/abc123",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=csv",
		},
		{
			name: "already an export link",
			in:   "https://docs.google.com/spreadsheets/d/abc123/export?format=xlsx",
			want: "https://docs.google.com/spreadsheets/d/abc123/export?format=xlsx",
		},
		{
			name: "other host",
			in:   "https://example.org/respostas.csv",
			want: "https://example.org/respostas.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExportURL(tt.in))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "xlsx", DetectFormat("xlsx", "application/json", "x.csv"))
	assert.Equal(t, "json", DetectFormat("", "application/json; charset=utf-8", "x.csv"))
	assert.Equal(t, "xlsx", DetectFormat("", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ""))
	assert.Equal(t, "xlsx", DetectFormat("", "application/octet-stream", "https://h/export?format=xlsx"))
	assert.Equal(t, "json", DetectFormat("", "", "https://h/respostas.json"))
	assert.Equal(t, "csv", DetectFormat("", "text/plain", "https://h/dados"))
}

func TestHTTPSource_FetchCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Gênero,Q1\nMasculino,4\nFeminino,\n"))
	}))
	defer server.Close()

	config := testConfig(server.URL + "/respostas")
	config.Headers = map[string]string{"X-Api-Key": "token"}
	source := NewHTTPSource(config, quietLogger())

	table, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Gênero", "Q1"}, table.Headers)
	require.Equal(t, 2, table.RowCount())
	assert.True(t, table.Rows[1][1].Missing)
}

func TestHTTPSource_RetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte("a\n1\n"))
		}
	}))
	defer server.Close()

	source := NewHTTPSource(testConfig(server.URL), quietLogger())
	table, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, table.RowCount())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPSource_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	source := NewHTTPSource(testConfig(server.URL), quietLogger())
	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPSource_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.Retries = 2
	source := NewHTTPSource(config, quietLogger())
	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeExternalService, errors.GetCode(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPSource_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.Backoff = time.Hour
	config.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	source := NewHTTPSource(config, quietLogger())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := source.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPSource_InvalidConfig(t *testing.T) {
	source := NewHTTPSource(SourceConfig{}, quietLogger())
	_, err := source.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestHTTPSource_FetchJSONRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"rows":[
			{"Gênero":"Feminino","Idade":31,"Ativo":true},
			{"Gênero":null,"Nota":"4 - concordo"}
		]}}`))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RecordsPath = "data.rows"
	source := NewHTTPSource(config, quietLogger())

	table, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Gênero", "Idade", "Ativo", "Nota"}, table.Headers)
	require.Equal(t, 2, table.RowCount())

	assert.Equal(t, "31", table.Rows[0][1].Text)
	assert.Equal(t, "True", table.Rows[0][2].Text)
	assert.True(t, table.Rows[0][3].Missing, "absent key is missing")
	assert.True(t, table.Rows[1][0].Missing, "null is missing")
	assert.Equal(t, "4 - concordo", table.Rows[1][3].Text)
}

func TestParseRecords_Errors(t *testing.T) {
	config := DefaultSourceConfig("x").Reader

	_, err := ParseRecords([]byte(`{not json`), "", config)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ParseRecords([]byte(`{"rows":[]}`), "missing", config)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ParseRecords([]byte(`{"rows":{"a":1}}`), "rows", config)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ParseRecords([]byte(`[1,2]`), "", config)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
