package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"reqtrace/core"
	"reqtrace/tables"
)

const (
	maxErrorMessageLength = 1024
	maxRequestBodyBytes   = 1 << 20
)

var (
	credentialPattern = regexp.MustCompile(`(?i)(password|secret|token|authorization)[:=]\s*["']?[^"'\s]+["']?`)
	basicAuthPattern  = regexp.MustCompile(`(?i)basic\s+[a-z0-9+/=]+`)
)

// errorResponse is the body of every error reply
type errorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// sanitizeErrorMessage removes credentials before a message is sent to clients
func sanitizeErrorMessage(message string) string {
	message = credentialPattern.ReplaceAllString(message, "$1=[REDACTED]")
	message = basicAuthPattern.ReplaceAllString(message, "Basic [REDACTED]")
	if len(message) > maxErrorMessageLength {
		message = message[:maxErrorMessageLength-3] + "..."
	}
	return message
}

// writeError logs the full error and writes a sanitized JSON error to the client
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	writeErrorDetails(w, statusCode, message, nil, err, logger)
}

func writeErrorDetails(w http.ResponseWriter, statusCode int, message string, details interface{}, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		if err != nil {
			logger.Warnw(message,
				"error", err.Error(),
				"status_code", statusCode)
		} else {
			logger.Warnw(message,
				"status_code", statusCode)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   sanitizeErrorMessage(message),
		Details: details,
	})
}

// respondJSON writes data as JSON
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// decodeJSONBody decodes a size-limited JSON body and validates it. On failure
// the error reply has already been written.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON syntax at byte offset %d", syntaxError.Offset), err, a.logger)
		case errors.As(err, &unmarshalTypeError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid type for field '%s': expected %s, got %s", unmarshalTypeError.Field, unmarshalTypeError.Type, unmarshalTypeError.Value), err, a.logger)
		case errors.As(err, &maxBytesError):
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", err, a.logger)
		case strings.Contains(err.Error(), "unknown field"):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("JSON contains %s", err.Error()), err, a.logger)
		default:
			writeError(w, http.StatusBadRequest, "Invalid JSON body", err, a.logger)
		}
		return err
	}

	if err := a.validate.Struct(dst); err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "Invalid request", validationMessages(err), err, a.logger)
		return err
	}
	return nil
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return out
}

// writeServiceError maps a report or table error onto a status code
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var tableErr *tables.ValidationError
	switch {
	case errors.As(err, &tableErr):
		writeErrorDetails(w, http.StatusUnprocessableEntity, tableErr.Error(), tableErr, err, a.logger)
	case errors.Is(err, core.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), err, a.logger)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), err, a.logger)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Upstream fetch timed out", err, a.logger)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "Request cancelled", err, a.logger)
	case errors.Is(err, core.ErrRequiredPullFailed), errors.Is(err, core.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error(), err, a.logger)
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error", err, a.logger)
	}
}
