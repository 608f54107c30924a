package jobs

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound marks a missing spreadsheet, job or result file.
	ErrNotFound = errors.New("not found")
	// ErrStructure marks a spreadsheet lacking required columns.
	ErrStructure = errors.New("spreadsheet structure error")
	// ErrParse marks malformed spreadsheet bytes.
	ErrParse = errors.New("spreadsheet parse error")
	// ErrIO marks a write or delete failure.
	ErrIO = errors.New("io error")
	// ErrAmbiguousMatch marks more than one candidate result file for a job.
	// The scanner resolves ties deterministically and only logs it.
	ErrAmbiguousMatch = errors.New("ambiguous result match")
)

// Error carries an operation and path alongside one of the sentinel kinds.
type Error struct {
	Kind error
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 5)
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	if msg := strings.TrimSpace(e.Msg); msg != "" {
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap tags err with kind and operation context. A nil kind defaults to ErrIO.
func Wrap(kind error, op, path, msg string, err error) error {
	if kind == nil {
		kind = ErrIO
	}
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg, Err: err}
}

// KindOf returns the sentinel kind of err, or nil when err is unclassified.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrStructure, ErrParse, ErrIO, ErrAmbiguousMatch} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
