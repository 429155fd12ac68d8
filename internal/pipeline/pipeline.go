// Package pipeline sequences acquisition and summarization for one request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/metrics"
	"github.com/FranksOps/tubebrief/internal/summarize"
)

// DefaultMaxResults applies when a request omits the limit or sends a non-positive one.
const DefaultMaxResults = 10

// ErrValidation matches malformed requests.
var ErrValidation = errors.New("invalid request")

// Stage names a pipeline step.
type Stage string

const (
	StageAcquisition   Stage = "acquisition"
	StageSummarization Stage = "summarization"
)

// Run modes reported to metrics and run history.
const (
	ModePipeline = "pipeline"
	ModeAcquire  = "acquire"
)

// Request is one immutable pipeline input.
type Request struct {
	Keyword    string
	MaxResults int
}

// NewRequest validates the keyword and defaults the limit. A keyword made
// only of whitespace is rejected; any other keyword is forwarded verbatim.
func NewRequest(keyword string, maxResults int) (Request, error) {
	if strings.TrimSpace(keyword) == "" {
		return Request{}, fmt.Errorf("%w: keyword is required", ErrValidation)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return Request{Keyword: keyword, MaxResults: maxResults}, nil
}

// StageError tags a failure with the stage that produced it. The wrapped
// error is the stage's own classification, unchanged.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is either a Result or a stage-tagged failure, never both.
type Outcome struct {
	Result summarize.Result
	// Records is the number of acquired records, for reporting.
	Records int
	Err     *StageError
}

// OK reports whether both stages succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Acquisition is the result of the acquisition stage run on its own.
type Acquisition struct {
	Records acquire.RecordSet
	// Count is Records.Len(), computed once.
	Count int
	Err   *StageError
}

// OK reports whether acquisition succeeded.
func (a Acquisition) OK() bool { return a.Err == nil }

// Orchestrator runs Acquirer then Summarizer. It holds no per-request state
// and may be shared by concurrent requests.
type Orchestrator struct {
	acquirer   acquire.Acquirer
	summarizer summarize.Summarizer
}

// New wires the two stages.
func New(a acquire.Acquirer, s summarize.Summarizer) (*Orchestrator, error) {
	if a == nil {
		return nil, errors.New("pipeline: acquirer is nil")
	}
	if s == nil {
		return nil, errors.New("pipeline: summarizer is nil")
	}
	return &Orchestrator{acquirer: a, summarizer: s}, nil
}

// Execute runs both stages. The summarizer is only called when acquisition
// succeeded; any failure ends the run.
func (o *Orchestrator) Execute(ctx context.Context, req Request) Outcome {
	acq := o.acquire(ctx, req)
	if !acq.OK() {
		metrics.RecordRun(ModePipeline, string(acq.Err.Stage), 0)
		return Outcome{Err: acq.Err}
	}

	start := time.Now()
	result, err := o.summarizer.Summarize(ctx, acq.Records)
	metrics.ObserveStage(string(StageSummarization), time.Since(start), err)
	if err != nil {
		metrics.RecordRun(ModePipeline, string(StageSummarization), acq.Count)
		return Outcome{Records: acq.Count, Err: &StageError{Stage: StageSummarization, Err: err}}
	}

	metrics.RecordRun(ModePipeline, "", acq.Count)
	return Outcome{Result: result, Records: acq.Count}
}

// Acquire runs the acquisition stage alone.
func (o *Orchestrator) Acquire(ctx context.Context, req Request) Acquisition {
	acq := o.acquire(ctx, req)
	if !acq.OK() {
		metrics.RecordRun(ModeAcquire, string(acq.Err.Stage), 0)
		return acq
	}
	metrics.RecordRun(ModeAcquire, "", acq.Count)
	return acq
}

func (o *Orchestrator) acquire(ctx context.Context, req Request) Acquisition {
	start := time.Now()
	records, err := o.acquirer.Fetch(ctx, req.Keyword, req.MaxResults)
	metrics.ObserveStage(string(StageAcquisition), time.Since(start), err)
	if err != nil {
		return Acquisition{Err: &StageError{Stage: StageAcquisition, Err: err}}
	}
	return Acquisition{Records: records, Count: records.Len()}
}
