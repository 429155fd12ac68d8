// Package acquire runs the external scraper process and turns its standard
// output into a RecordSet.
package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrAcquisitionFailed matches every failure to run the scraper to a
	// clean exit: start errors, non-zero exit codes and cancellation.
	ErrAcquisitionFailed = errors.New("acquisition failed")
	// ErrInvalidOutput matches a clean exit whose stdout is not valid JSON.
	ErrInvalidOutput = errors.New("invalid acquisition output")
)

// Acquirer collects raw records for a keyword.
type Acquirer interface {
	Fetch(ctx context.Context, keyword string, limit int) (RecordSet, error)
}

// RecordSet is the JSON value the scraper printed, kept verbatim.
type RecordSet json.RawMessage

// MarshalJSON emits the record set unchanged.
func (r RecordSet) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Len returns the number of records when the set is a JSON array, else 0.
func (r RecordSet) Len() int {
	trimmed := bytes.TrimSpace(r)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return 0
	}
	return len(items)
}

// ParseRecordSet validates out as a single JSON value.
func ParseRecordSet(out []byte) (RecordSet, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &OutputError{Err: err, Size: len(out)}
	}
	return RecordSet(raw), nil
}

// MaxDiagnosticBytes caps the output excerpt a ProcessError carries. The
// tail is kept.
const MaxDiagnosticBytes = 4 << 10

// ProcessError reports a scraper run that did not exit cleanly.
type ProcessError struct {
	Command  string
	ExitCode int    // -1 when the process never started or was killed
	Stderr   string // trimmed tail of standard error
	// Stdout is the trimmed tail of standard output, kept only when the
	// process wrote nothing to stderr.
	Stdout string
	Err    error
}

func (e *ProcessError) diagnostic() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Stdout
}

func (e *ProcessError) Error() string {
	diag := e.diagnostic()
	switch {
	case diag != "" && e.ExitCode > 0:
		return fmt.Sprintf("scraper exited with code %d: %s", e.ExitCode, diag)
	case diag != "":
		return fmt.Sprintf("scraper failed: %v: %s", e.Err, diag)
	case e.ExitCode > 0:
		return fmt.Sprintf("scraper exited with code %d", e.ExitCode)
	default:
		return fmt.Sprintf("scraper failed: %v", e.Err)
	}
}

func (e *ProcessError) Unwrap() error { return e.Err }

func (e *ProcessError) Is(target error) bool { return target == ErrAcquisitionFailed }

// tail trims b and keeps at most its last n bytes, starting on a rune boundary.
func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return string(b)
	}
	cut := len(b) - n
	for cut < len(b) && !utf8.RuneStart(b[cut]) {
		cut++
	}
	return "..." + string(b[cut:])
}

// OutputError reports scraper output that could not be parsed.
type OutputError struct {
	Err  error
	Size int // bytes of stdout received
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("failed to parse scraper output (%d bytes): %v", e.Size, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

func (e *OutputError) Is(target error) bool { return target == ErrInvalidOutput }
