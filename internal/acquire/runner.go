package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/tubebrief/internal/metrics"
	"github.com/FranksOps/tubebrief/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

// DefaultWaitDelay bounds how long Wait lingers on I/O after the child is
// killed.
const DefaultWaitDelay = 2 * time.Second

// Config configures the scraper process.
type Config struct {
	// Command is the program followed by any fixed leading arguments, e.g.
	// ["python", "./scraper/youtube_scraper.py"]. The keyword and the limit
	// are appended per call.
	Command []string
	// Dir is the working directory of the child; empty means inherit.
	Dir string
	// Env, when non-nil, replaces the child's environment.
	Env []string
	// Timeout caps a single run in addition to the caller's context (0 = none).
	Timeout time.Duration
	// Limiter paces process starts; nil or disabled means no pacing.
	Limiter *ratelimit.Limiter
	// StripHTML reduces markup in string values to plain text.
	StripHTML bool
}

// Runner spawns one scraper process per Fetch.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

var _ Acquirer = (*Runner)(nil)

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("acquire: command is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("acquire: negative timeout %v", cfg.Timeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Command = slices.Clone(cfg.Command)
	return &Runner{cfg: cfg, logger: logger}, nil
}

// Fetch runs the configured command with keyword and limit as the two
// trailing positional arguments.
func (r *Runner) Fetch(ctx context.Context, keyword string, limit int) (RecordSet, error) {
	args := append(slices.Clone(r.cfg.Command[1:]), keyword, strconv.Itoa(limit))
	records, err := r.Run(ctx, r.cfg.Command[0], args)
	if err != nil {
		return nil, err
	}
	if r.cfg.StripHTML {
		return StripMarkup(records)
	}
	return records, nil
}

// Run starts command, drains stdout and stderr until both close, waits for
// the process to exit, and parses stdout as JSON.
func (r *Runner) Run(ctx context.Context, command string, args []string) (RecordSet, error) {
	if err := r.cfg.Limiter.Wait(ctx); err != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = r.cfg.Env
	cmd.WaitDelay = DefaultWaitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Err: err}
	}

	start := time.Now()
	r.logger.Debug("starting scraper", "command", command, "args", args)

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Err: err}
	}
	metrics.ActiveProcesses.Inc()
	defer metrics.ActiveProcesses.Dec()

	// A grandchild holding the pipes open would keep the drains blocked after
	// the child is killed; closing the read ends releases them.
	stop := context.AfterFunc(ctx, func() {
		_ = stdoutPipe.Close()
		_ = stderrPipe.Close()
	})
	defer stop()

	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	r.logger.Debug("scraper exited",
		"command", command,
		"duration", time.Since(start),
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
		"err", waitErr,
	)

	stderrText := tail(stderr.Bytes(), MaxDiagnosticBytes)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Stderr: stderrText, Err: ctxErr}
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		pe := &ProcessError{Command: command, ExitCode: exitCode, Stderr: stderrText, Err: waitErr}
		if stderrText == "" {
			// Some scrapers report the failure as JSON on stdout.
			pe.Stdout = tail(stdout.Bytes(), MaxDiagnosticBytes)
		}
		return nil, pe
	}

	if drainErr != nil {
		return nil, &ProcessError{Command: command, ExitCode: -1, Stderr: stderrText, Err: fmt.Errorf("read output: %w", drainErr)}
	}

	return ParseRecordSet(stdout.Bytes())
}
