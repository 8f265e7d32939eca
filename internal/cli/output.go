package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"labcore/internal/resolvers"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the request was rejected or the data has violations
	ExitCommandError = 2 // bad flags, config or store
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps err onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) printer {
	return printer{format: opts.Output, w: w}
}

// value writes v as indented JSON, or through text in text mode.
func (p printer) value(v any, text func(io.Writer)) error {
	if p.format == "text" && text != nil {
		text(p.w)
		return nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// response prints res and turns an unsuccessful response into ExitFailure.
func (p printer) response(res resolvers.Response) error {
	err := p.value(res, func(w io.Writer) {
		if res.Data != nil {
			fmt.Fprintf(w, "%s: %v\n", res.Message, res.Data)
			return
		}
		fmt.Fprintln(w, res.Message)
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return NewExitError(ExitFailure, res.Message)
	}
	return nil
}
