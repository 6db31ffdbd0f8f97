package harness

import (
	"errors"

	"github.com/roach88/activerules/internal/engine"
	"github.com/roach88/activerules/internal/index"
	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/store"
)

// StepRecord is the trace entry of one executed step.
type StepRecord struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"` // "ok" or an error kind
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion met its expectation.
	Pass bool `json:"pass"`

	// Trace has one record per executed step, in order.
	Trace []StepRecord `json:"trace"`

	// Documents are the visible documents after the last step, ordered by key.
	Documents []ir.ActiveRule `json:"documents"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []StepRecord{},
		Documents: []ir.ActiveRule{},
		Errors:    []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Error kinds reported in the trace and matched by expect_error.
const (
	KindOK                = "ok"
	KindInvalidRequest    = "invalid_request"
	KindNotFound          = "not_found"
	KindMalformedKey      = "malformed_key"
	KindUnknownEnum       = "unknown_enum"
	KindWriteRejected     = "write_rejected"
	KindVisibilityTimeout = "visibility_timeout"
	KindPostCommit        = "post_commit"
	KindError             = "error"
)

// errorKinds is checked in order; the first match names the error.
var errorKinds = []struct {
	kind string
	err  error
}{
	{KindWriteRejected, index.ErrWriteRejected},
	{KindVisibilityTimeout, index.ErrVisibilityTimeout},
	{KindMalformedKey, ir.ErrMalformedKey},
	{KindUnknownEnum, ir.ErrUnknownEnum},
	{KindInvalidRequest, engine.ErrInvalidRequest},
	{KindNotFound, store.ErrNotFound},
	{KindPostCommit, store.ErrPostCommit},
}

// ErrorKind names the category of err, KindOK for nil.
func ErrorKind(err error) string {
	if err == nil {
		return KindOK
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindError
}

func knownErrorKind(kind string) bool {
	if kind == KindError {
		return true
	}
	for _, k := range errorKinds {
		if k.kind == kind {
			return true
		}
	}
	return false
}
