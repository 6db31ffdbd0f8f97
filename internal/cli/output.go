package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/activerules/internal/config"
	"github.com/roach88/activerules/internal/engine"
	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Not found, rejected write, failed scenario
	ExitCommandError = 2 // Command error (bad config, bad arguments, unreadable files)
)

// Error codes reported in CLI error output.
const (
	ErrCodeGeneric           = "E001" // Generic/unknown error
	ErrCodeInvalidConfig     = "E002" // Config file or overrides rejected
	ErrCodeInvalidRequest    = "E003" // Activation request cannot be applied
	ErrCodeNotFound          = "E004" // No such activation or profile
	ErrCodeMalformedKey      = "E005" // Key does not parse
	ErrCodeUnknownEnum       = "E006" // Severity or inheritance not recognized
	ErrCodeWriteRejected     = "E007" // Index refused the document
	ErrCodeVisibilityTimeout = "E008" // Refresh did not finish in time
	ErrCodePostCommit        = "E009" // Committed, but the index was not updated
)

// errorCodes is checked in order; the first match names the error.
var errorCodes = []struct {
	err  error
	code string
}{
	{config.ErrInvalidConfig, ErrCodeInvalidConfig},
	{index.ErrWriteRejected, ErrCodeWriteRejected},
	{index.ErrVisibilityTimeout, ErrCodeVisibilityTimeout},
	{ir.ErrMalformedKey, ErrCodeMalformedKey},
	{ir.ErrUnknownEnum, ErrCodeUnknownEnum},
	{engine.ErrInvalidRequest, ErrCodeInvalidRequest},
	{store.ErrNotFound, ErrCodeNotFound},
	{store.ErrPostCommit, ErrCodePostCommit},
}

// ErrorCode maps an error to its CLI error code.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ErrCodeGeneric
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. Text
// output prints data with fmt, so payloads implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprintln(f.Writer, data)
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

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it as an ExitError with exitCode.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	if outErr := f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// documentView renders one document. JSON uses the document's own tags.
type documentView ir.ActiveRule

func (d documentView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  severity=%s inheritance=%s", d.Key, d.Severity, d.Inheritance)
	if d.ParentKey != nil {
		fmt.Fprintf(&b, " parent=%s", *d.ParentKey)
	}
	for _, name := range slices.Sorted(maps.Keys(d.Params)) {
		fmt.Fprintf(&b, " %s=%s", name, d.Params[name])
	}
	return b.String()
}

// documentList renders query results, one document per line.
type documentList []documentView

func newDocumentList(docs []ir.ActiveRule) documentList {
	out := make(documentList, len(docs))
	for i, d := range docs {
		out[i] = documentView(d)
	}
	return out
}

func (l documentList) String() string {
	if len(l) == 0 {
		return "No active rules found."
	}
	lines := make([]string, len(l))
	for i, d := range l {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}
