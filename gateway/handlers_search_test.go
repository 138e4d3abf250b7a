package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSearchReturnsFusedSourcesAndAnswer(t *testing.T) {
	g := newTestGateway(t)

	body := strings.NewReader(`{"query":"what is polonium"}`)
	req := httptest.NewRequest(http.MethodPost, "/search", body)
	rec := httptest.NewRecorder()

	g.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TraceID)
	assert.NotEmpty(t, resp.Answer)
	assert.Equal(t, "local_stub", resp.Providers.LLM)
	assert.Len(t, resp.Sources, 3)
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	g := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{"query":"   "}`))
	rec := httptest.NewRecorder()

	g.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchRejectsMalformedBody(t *testing.T) {
	g := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	g.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
