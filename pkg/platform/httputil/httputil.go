// Package httputil holds the JSON response and request helpers shared by
// every handler package.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "kycflow/pkg/domain-errors"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the error envelope returned for every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Validatable is implemented by request bodies that check themselves after decoding.
type Validatable interface {
	Validate() error
}

// normalizer is optionally implemented by request bodies that trim or
// lower-case fields before validation.
type normalizer interface {
	Normalize()
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and error envelope. Internal and storage
// failures keep their message server side.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}

	var de *dErrors.Error
	if errors.As(err, &de) && !hideDescription(code) {
		resp.ErrorDescription = de.Message
	}
	WriteJSON(w, dErrors.HTTPStatus(code), resp)
}

func hideDescription(code dErrors.Code) bool {
	return code == dErrors.CodeInternal || code == dErrors.CodeStorageFailure
}

// DecodeAndPrepare decodes the JSON body into a T, normalizes and validates
// it. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	p := PT(&req)
	if n, ok := any(p).(normalizer); ok {
		n.Normalize()
	}
	if err := p.Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
