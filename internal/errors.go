package internal

import (
	"errors"
	"fmt"
)

// ErrNotRegular is returned for FIFOs, sockets, devices and directories given as files.
var ErrNotRegular = errors.New("not a regular file")

// StartupError aborts a scan before any worker starts.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string { return fmt.Sprintf("startup: %s: %v", e.Op, e.Err) }
func (e *StartupError) Unwrap() error { return e.Err }

func startupErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StartupError{Op: op, Err: err}
}

// AccessError means a single file could not be opened or read. The file is
// skipped and the scan continues.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string { return e.Err.Error() }
func (e *AccessError) Unwrap() error { return e.Err }

// IsStartupError reports whether err should stop the process.
func IsStartupError(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}
