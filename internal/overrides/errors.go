package overrides

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict reports two incompatible type requests for one tensor.
	ErrConflict = errors.New("conflicting type requests")
	// ErrNotSupported reports per-channel (multi-record) overrides.
	ErrNotSupported = errors.New("not supported")
	// ErrInvalidOverride reports a malformed override record.
	ErrInvalidOverride = errors.New("invalid override")
)

// TensorError ties one of the sentinel errors above to a tensor name so
// callers can adjust the offending override.
type TensorError struct {
	Tensor string
	Err    error
	Msg    string
}

func (e *TensorError) Error() string {
	return fmt.Sprintf("%v: tensor %q: %s", e.Err, e.Tensor, e.Msg)
}

func (e *TensorError) Unwrap() error {
	return e.Err
}

// Conflictf builds an ErrConflict for tensor.
func Conflictf(tensor, format string, args ...any) error {
	return &TensorError{Tensor: tensor, Err: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func invalidf(tensor, format string, args ...any) error {
	return &TensorError{Tensor: tensor, Err: ErrInvalidOverride, Msg: fmt.Sprintf(format, args...)}
}

func multiRecord(tensor string, n int) error {
	return &TensorError{
		Tensor: tensor,
		Err:    ErrNotSupported,
		Msg:    fmt.Sprintf("%d override records (per-channel overrides are not supported)", n),
	}
}
