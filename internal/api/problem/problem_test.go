package problem

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Details {
	t.Helper()
	var details Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	return details
}

func TestWriteDevelopmentExposesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusBadRequest, "about:blank", "Bad input",
		fmt.Errorf("column 3 is not a date"), "development")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	details := decode(t, rec)
	assert.Equal(t, "Bad input", details.Title)
	assert.Equal(t, "column 3 is not a date", details.Detail)
	assert.Equal(t, "/api/v1/import", details.Instance)
}

func TestWriteProductionRedactsDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusInternalServerError, "about:blank", "Import failed",
		fmt.Errorf("pq: connection refused to 10.3.2.1"), "production")

	details := decode(t, rec)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), details.Detail)
	assert.NotContains(t, rec.Body.String(), "10.3.2.1")
}

func TestWriteOptions(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()

	Write(rec, req, http.StatusUnprocessableEntity, "about:blank", "Invalid payload", nil, "production",
		WithDetail("explicit detail wins"),
		WithErrors(map[string]any{"tenant_id": "required"}))

	details := decode(t, rec)
	assert.Equal(t, "explicit detail wins", details.Detail)
	assert.Equal(t, "required", details.Errors["tenant_id"])
}
