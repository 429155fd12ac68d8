package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/tubebrief/pkg/ratelimit"
	"go.uber.org/goleak"
)

// shRunner builds a Runner whose command is `sh -c script scraper`, so the
// keyword and limit arrive as $1 and $2.
func shRunner(t *testing.T, script string, mutate ...func(*Config)) *Runner {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cfg := Config{Command: []string{"sh", "-c", script, "scraper"}}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestRunner_Success(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := shRunner(t, `printf '[{"id":1}]'`)
	records, err := r.Fetch(context.Background(), "cats", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(records) != `[{"id":1}]` {
		t.Errorf("expected raw stdout, got %s", records)
	}
	if records.Len() != 1 {
		t.Errorf("expected 1 record, got %d", records.Len())
	}
}

func TestRunner_PositionalArguments(t *testing.T) {
	r := shRunner(t, `printf '{"keyword":"%s","limit":"%s"}' "$1" "$2"`)
	records, err := r.Fetch(context.Background(), "lo-fi beats", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(records, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["keyword"] != "lo-fi beats" {
		t.Errorf("expected keyword passed verbatim, got %q", got["keyword"])
	}
	if got["limit"] != "10" {
		t.Errorf("expected limit argument \"10\", got %q", got["limit"])
	}
}

func TestRunner_NonZeroExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := shRunner(t, `echo "network timeout" >&2; printf '[]'; exit 1`)
	_, err := r.Fetch(context.Background(), "dogs", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
	}
	if errors.Is(err, ErrInvalidOutput) {
		t.Errorf("non-zero exit must not be classified as invalid output")
	}

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %T", err)
	}
	if pe.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", pe.ExitCode)
	}
	if pe.Stderr != "network timeout" {
		t.Errorf("expected stderr captured, got %q", pe.Stderr)
	}
	if !strings.Contains(err.Error(), "network timeout") {
		t.Errorf("expected stderr in message, got %q", err.Error())
	}
}

func TestRunner_NonZeroExitReportsStdout(t *testing.T) {
	r := shRunner(t, `printf '{"error":"quota"}'; exit 1`)
	_, err := r.Fetch(context.Background(), "cats", 10)
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
	}

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %T", err)
	}
	if pe.Stdout != `{"error":"quota"}` {
		t.Errorf("expected stdout kept as diagnostic, got %q", pe.Stdout)
	}
	if err.Error() != `scraper exited with code 1: {"error":"quota"}` {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRunner_LargeStderrIsTruncated(t *testing.T) {
	r := shRunner(t, `i=0; while [ $i -lt 2000 ]; do echo "noise line $i padding padding padding" >&2; i=$((i+1)); done
echo "fatal: quota exceeded" >&2; exit 1`)
	_, err := r.Fetch(context.Background(), "cats", 10)

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if len(pe.Stderr) > MaxDiagnosticBytes+len("...") {
		t.Errorf("expected stderr capped near %d bytes, got %d", MaxDiagnosticBytes, len(pe.Stderr))
	}
	if !strings.HasSuffix(pe.Stderr, "fatal: quota exceeded") {
		t.Errorf("expected the last stderr line kept, got tail %q", pe.Stderr[len(pe.Stderr)-40:])
	}
	if pe.Stdout != "" {
		t.Errorf("stdout must not be kept when stderr has output, got %q", pe.Stdout)
	}
}

func TestRunner_InvalidJSON(t *testing.T) {
	r := shRunner(t, `echo "this is not json"`)
	_, err := r.Fetch(context.Background(), "cats", 10)
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
	if errors.Is(err, ErrAcquisitionFailed) {
		t.Errorf("parse failure must not be classified as acquisition failure")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("expected parse failure in message, got %q", err.Error())
	}

	var se *json.SyntaxError
	if !errors.As(err, &se) {
		t.Errorf("expected underlying *json.SyntaxError, got %v", err)
	}
}

func TestRunner_EmptyOutput(t *testing.T) {
	r := shRunner(t, `exit 0`)
	_, err := r.Fetch(context.Background(), "cats", 10)
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput for empty stdout, got %v", err)
	}
}

func TestRunner_LargeOutputOnBothStreams(t *testing.T) {
	// Both writes exceed a pipe buffer; without concurrent draining the child
	// would block forever on whichever stream is not being read.
	script := `i=0; while [ $i -lt 4000 ]; do echo "warning line $i padding padding padding" >&2; i=$((i+1)); done
printf '['; i=0; while [ $i -lt 4000 ]; do printf '{"n":%d},' $i; i=$((i+1)); done; printf '{"n":-1}]'`

	r := shRunner(t, script, func(c *Config) { c.Timeout = 30 * time.Second })
	records, err := r.Fetch(context.Background(), "cats", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records.Len() != 4001 {
		t.Errorf("expected 4001 records, got %d", records.Len())
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	r, err := NewRunner(Config{Command: []string{"/nonexistent/tubebrief-scraper"}}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	_, err = r.Fetch(context.Background(), "cats", 10)
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
	}

	var pe *ProcessError
	if errors.As(err, &pe) && pe.ExitCode != -1 {
		t.Errorf("expected exit code -1 for a process that never started, got %d", pe.ExitCode)
	}
}

func TestRunner_ContextCancelKillsChild(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := shRunner(t, `sleep 30; printf '[]'`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Fetch(ctx, "cats", 10)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("runner did not return promptly after cancellation: %v", elapsed)
	}
}

func TestRunner_ConfigTimeout(t *testing.T) {
	r := shRunner(t, `sleep 30`, func(c *Config) { c.Timeout = 100 * time.Millisecond })

	_, err := r.Fetch(context.Background(), "cats", 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunner_LimiterHonorsContext(t *testing.T) {
	r := shRunner(t, `printf '[]'`, func(c *Config) { c.Limiter = ratelimit.NewLimiter(1, 0) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Fetch(ctx, "cats", 10)
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Fatalf("expected ErrAcquisitionFailed from limiter, got %v", err)
	}
}

func TestRunner_StripHTML(t *testing.T) {
	r := shRunner(t, `printf '[{"Title":"<b>Cats</b> &amp; dogs","View Count":"12"}]'`,
		func(c *Config) { c.StripHTML = true })

	records, err := r.Fetch(context.Background(), "cats", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []map[string]string
	if err := json.Unmarshal(records, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0]["Title"] != "Cats & dogs" {
		t.Errorf("expected markup stripped, got %q", got[0]["Title"])
	}
}

func TestNewRunner_Validation(t *testing.T) {
	if _, err := NewRunner(Config{}, nil); err == nil {
		t.Error("expected error for empty command")
	}
	if _, err := NewRunner(Config{Command: []string{"  "}}, nil); err == nil {
		t.Error("expected error for blank program")
	}
	if _, err := NewRunner(Config{Command: []string{"python"}, Timeout: -time.Second}, nil); err == nil {
		t.Error("expected error for negative timeout")
	}
}
