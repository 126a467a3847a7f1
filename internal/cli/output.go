package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/passvault/internal/application"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Domain failure (no deposit, underpaid, unknown user, failed audit)
	ExitCommandError = 2 // Command error (bad arguments, store cannot be opened, internal failure)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Kind    string // Machine-readable error kind
	Message string // Error message
	Details any    // Additional context for JSON output (optional)
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// usageError reports a bad invocation.
func usageError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Kind: "usage", Message: message, Err: err}
}

// domainError classifies an AccountManager error. Internal failures are
// command errors; every other kind is a domain failure.
func domainError(op string, err error) *ExitError {
	kind := application.KindOf(err)
	e := &ExitError{Code: ExitFailure, Kind: kind.String(), Message: op, Err: err}
	if kind == application.KindInternal {
		e.Code = ExitCommandError
	}
	var payErr *application.InsufficientPaymentError
	if errors.As(err, &payErr) {
		e.Details = map[string]string{
			"required": payErr.Required.Dec(),
			"attached": payErr.Attached.Dec(),
		}
	}
	return e
}

// GetExitCode extracts the exit code from an error.
// Errors that are not an ExitError come from argument parsing and map to
// ExitCommandError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Text-mode errors go here (defaults to Writer)
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // error kind, e.g. "payment"
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs data as JSON, or text in text mode.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	_, err := fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	return err
}
