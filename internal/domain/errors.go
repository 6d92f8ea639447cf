package domain

import "errors"

var (
	ErrEmptyBuffer   = errors.New("pcm buffer is empty")
	ErrInvalidBuffer = errors.New("pcm buffer is malformed")
)

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Code ErrorCode
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Wrap attaches a code to err. It is a no-op for nil errors and for errors
// that already carry a code, so the innermost stage wins.
func Wrap(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return err
	}
	return &StageError{Code: code, Err: err}
}

// CodeOf extracts the stage code from err, or ErrorCodeUnknown.
func CodeOf(err error) ErrorCode {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Code
	}
	return ErrorCodeUnknown
}
