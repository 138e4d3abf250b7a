package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/gateway/apperr"
)

func TestWriteAppErrorMapsKindToStatusAndStampsTraceID(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, apperr.New(apperr.KindRateLimited, "too many requests"), "trace-123", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body apperr.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperr.KindRateLimited, body.Kind)
	assert.Equal(t, "trace-123", body.TraceID)
}

func TestWriteAppErrorWrapsPlainErrorsAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, errors.New("boom"), "trace-456", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body apperr.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperr.KindInternal, body.Kind)
}
