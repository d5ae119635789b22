package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/qdqconf/internal/graph"
	"github.com/samcharles93/qdqconf/internal/overrides"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a resolution error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, overrides.ErrConflict):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, overrides.ErrNotSupported):
		return http.StatusBadRequest, "not_supported_error"
	case errors.Is(err, overrides.ErrInvalidOverride),
		errors.Is(err, graph.ErrMalformed),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// tensorOf returns the tensor an error is about, if any.
func tensorOf(err error) string {
	var te *overrides.TensorError
	if errors.As(err, &te) {
		return te.Tensor
	}
	return ""
}
