package gateway

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
)

// writeJSON marshals data as status, grounded on api/handlers/common.go's
// WriteJSON. Unlike that helper it never wraps the body in a
// {success,data,error} envelope: every route here returns the flat shape
// spec.md §6 specifies.
func writeJSON(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("failed to encode response body", zap.Error(err))
	}
}

// writeAppError renders err as its mapped HTTP status and apperr.Error
// JSON body, stamping traceID onto the body if the error doesn't already
// carry one.
func writeAppError(w http.ResponseWriter, err error, traceID string, logger *zap.Logger) {
	ae, ok := err.(*apperr.Error)
	if !ok {
		ae = apperr.New(apperr.KindInternal, "internal error").WithCause(err)
	}
	if ae.TraceID == "" && traceID != "" {
		ae = ae.WithTraceID(traceID)
	}
	writeJSON(w, apperr.HTTPStatus(ae.Kind), ae, logger)
}

// decodeJSONBody decodes r.Body into v, capping the body at maxBytes and
// rejecting unknown fields, matching api/handlers/common.go's
// DecodeJSONBody idiom.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
