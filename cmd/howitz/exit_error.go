package main

import "fmt"

// Exit codes besides the generic 1 and 130 on cancel.
const (
	exitUsage    = 2
	exitNotFound = 3
)

type exitError struct {
	code   int
	err    error
	silent bool
}

func exitWith(code int, err error) *exitError {
	return &exitError{code: code, err: err}
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}
