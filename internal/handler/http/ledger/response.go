package ledger_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ledger/internal/domain"
)

const (
	resultSuccess = "SUCCESS"
	resultError   = "ERROR"

	codeInvalidRequest = "INVALID_REQUEST"
)

var validate = validator.New()

type envelope struct {
	Result string     `json:"result"`
	Data   any        `json:"data,omitempty"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	writeJSON(w, status, envelope{Result: resultSuccess, Data: data}, logger)
}

// writeError maps err to its ledger error kind. Anything that is not a ledger
// error is reported as INTERNAL_ERROR without its cause.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	kind := domain.AsError(err)
	if kind.Status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		logger.Warn("Request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", string(kind.Code)))
	}
	writeJSON(w, kind.Status, envelope{
		Result: resultError,
		Error:  &errorBody{Code: string(kind.Code), Message: kind.Message},
	}, logger)
}

func writeInvalidRequest(w http.ResponseWriter, message string, logger *zap.Logger) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Result: resultError,
		Error:  &errorBody{Code: codeInvalidRequest, Message: message},
	}, logger)
}

// decodeAndValidate reports a client-facing message on failure.
func decodeAndValidate(r *http.Request, dst any) (string, bool) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return "invalid request body", false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return "invalid request body", false
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; "), false
	}
	return "", true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
