package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type errorBody struct {
	Code   string        `json:"code"`
	Error  string        `json:"error"`
	Fields apperr.Fields `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusOf maps an error code to its HTTP status.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound, apperr.CodeOrderNotFound:
		return http.StatusNotFound
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeInsufficientStock, apperr.CodeAlreadyProcessed, apperr.CodeInvalidTransition:
		return http.StatusConflict
	case apperr.CodeInventoryUpdateFailed:
		return http.StatusBadGateway
	case apperr.CodeOwnershipMismatch:
		return http.StatusForbidden
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code := apperr.CodeOf(err)
	status := StatusOf(code)
	body := errorBody{Code: string(code), Error: err.Error()}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", string(code)), zap.Error(err))
		if code == apperr.CodeInternal {
			body.Error = "internal error"
		}
	} else {
		log.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", string(code)), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "invalid json")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.CodeInvalidArgument, "%s must be a positive integer", name)
	}
	return id, nil
}
