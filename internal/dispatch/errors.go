package dispatch

import (
	"encoding/json"
	"errors"
)

// ErrNothingFound is the promoted error for resolve/captcha handlers that
// return a null result.
var ErrNothingFound = errors.New("Nothing found")

// ErrRequestCacheReused reports a second RequestCache call on the same
// request. A request opens at most one inline slot; reopening is a
// configuration error, fatal and immediate.
var ErrRequestCacheReused = errors.New("requestCache already opened for this request")

type silentError struct {
	err error
}

// Silent wraps err so the pipeline will not log it as a warning when it
// surfaces as a 500. The message still reaches the caller.
func Silent(err error) error {
	if err == nil {
		return nil
	}
	return &silentError{err: err}
}

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

func suppressed(err error) bool {
	var se *silentError
	return errors.As(err, &se)
}

func errorBody(msg string) json.RawMessage {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return b
}
