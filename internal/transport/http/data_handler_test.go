package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtweak/internal/config"
	apierrors "tabtweak/internal/errors"
	"tabtweak/internal/middleware"
	"tabtweak/internal/services"
	"tabtweak/internal/shared/testutil"
)

func newTestErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(slog.New(slog.DiscardHandler), false)
}

func newDataRouter(t *testing.T) *chi.Mux {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	require.NoError(t, paths.EnsureDirectories())
	testutil.WriteDatasetFixtures(t, paths.InputDir)

	logger, _ := testutil.NewTestLogger(t)
	ds, err := services.NewDataService(config.Default(), paths, logger)
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	errorHandler := newTestErrorHandler()
	handler := NewDataHandler(ds, middleware.NewValidationMiddleware(logger, errorHandler, 0), errorHandler, logger)

	r := chi.NewRouter()
	r.Mount("/api/datasets", handler.Routes())
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestDataHandler_ListDatasets(t *testing.T) {
	r := newDataRouter(t)

	rec := serve(r, http.MethodGet, "/api/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
	datasets := body["datasets"].([]interface{})
	first := datasets[0].(map[string]interface{})
	assert.Equal(t, "nino", first["name"])
	assert.Equal(t, true, first["available"])
}

func TestDataHandler_ListInputFiles(t *testing.T) {
	r := newDataRouter(t)

	rec := serve(r, http.MethodGet, "/api/datasets/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])
}

func TestDataHandler_Tweak(t *testing.T) {
	r := newDataRouter(t)

	rec := serve(r, http.MethodGet, "/api/datasets/nyc/tweak?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "nyc", body["dataset"])
	assert.Equal(t, float64(6), body["rows"])
	assert.Equal(t, false, body["cached"])
	preview := body["preview"].(map[string]interface{})
	assert.Len(t, preview["rows"], 2)

	rec = serve(r, http.MethodGet, "/api/datasets/nyc/tweak", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cached"])

	rec = serve(r, http.MethodPost, "/api/datasets/nyc/tweak", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["cached"])
}

func TestDataHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "unknown dataset",
			method:     http.MethodGet,
			target:     "/api/datasets/absent/describe",
			wantStatus: http.StatusNotFound,
			wantType:   apierrors.TypeDatasetNotFound,
		},
		{
			name:       "malformed dataset name",
			method:     http.MethodGet,
			target:     "/api/datasets/Bad%20Name/tweak",
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "limit out of range",
			method:     http.MethodGet,
			target:     "/api/datasets/nyc/tweak?limit=5000",
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "corr without columns",
			method:     http.MethodGet,
			target:     "/api/datasets/nyc/corr?x=Max_TemperatureF",
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "corr on missing column",
			method:     http.MethodGet,
			target:     "/api/datasets/nyc/corr?x=Max_TemperatureF&y=absent",
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   apierrors.TypeTweakConfig,
		},
		{
			name:       "pivot without aggregations",
			method:     http.MethodPost,
			target:     "/api/datasets/nyc/pivot",
			body:       `{"keys":[{"column":"EST","part":"year"}]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
		{
			name:       "resample with unknown frequency",
			method:     http.MethodPost,
			target:     "/api/datasets/nyc/resample",
			body:       `{"time_column":"EST","freq":"hour","aggs":[{"column":"Max_TemperatureF","func":"max"}]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   apierrors.TypeValidation,
		},
	}

	r := newDataRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantType, decodeBody(t, rec)["type"])
		})
	}
}

func TestDataHandler_Analysis(t *testing.T) {
	r := newDataRouter(t)

	rec := serve(r, http.MethodGet, "/api/datasets/nyc/describe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), decodeBody(t, rec)["rows"])

	rec = serve(r, http.MethodGet, "/api/datasets/nyc/corr?x=Max_TemperatureF&y=Min_TemperatureF", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), decodeBody(t, rec)["pairs"])

	rec = serve(r, http.MethodPost, "/api/datasets/nyc/pivot",
		`{"keys":[{"column":"EST","part":"year"}],"aggs":[{"column":"Max_TemperatureF","func":"max"}],"filters":["EST.month == 1"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pivot := decodeBody(t, rec)
	assert.Len(t, pivot["rows"], 2)
	assert.Len(t, pivot["columns"], 2)

	rec = serve(r, http.MethodPost, "/api/datasets/nyc/resample",
		`{"time_column":"EST","freq":"month","aggs":[{"column":"Max_TemperatureF","func":"count"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// 2000-01 through 2001-01 inclusive
	assert.Len(t, decodeBody(t, rec)["rows"], 13)
}
