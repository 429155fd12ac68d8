package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	runs := []*storage.RunRecord{
		{
			Mode:      "pipeline",
			Success:   true,
			Records:   3,
			Duration:  100 * time.Millisecond,
			CreatedAt: now,
		},
		{
			Mode:      "pipeline",
			Stage:     "acquisition",
			Error:     "scraper exited with code 1: network timeout",
			Duration:  200 * time.Millisecond,
			CreatedAt: now.Add(1 * time.Second),
		},
		{
			Mode:      "acquire",
			Success:   true,
			Records:   10,
			Duration:  300 * time.Millisecond,
			CreatedAt: now.Add(2 * time.Second),
		},
		{
			Mode:      "pipeline",
			Stage:     "summarization",
			Records:   0,
			Duration:  400 * time.Millisecond,
			CreatedAt: now.Add(-1 * time.Second),
		},
	}

	summary := GenerateSummary(runs)

	if summary.TotalRuns != 4 {
		t.Errorf("expected 4 total runs, got %d", summary.TotalRuns)
	}
	if summary.Successes != 2 || summary.Failures != 2 {
		t.Errorf("expected 2/2 successes/failures, got %d/%d", summary.Successes, summary.Failures)
	}
	if summary.FailuresByStage["acquisition"] != 1 || summary.FailuresByStage["summarization"] != 1 {
		t.Errorf("unexpected failures by stage: %v", summary.FailuresByStage)
	}
	if summary.RunsByMode["pipeline"] != 3 || summary.RunsByMode["acquire"] != 1 {
		t.Errorf("unexpected runs by mode: %v", summary.RunsByMode)
	}
	if summary.TotalRecords != 13 {
		t.Errorf("expected 13 records, got %d", summary.TotalRecords)
	}
	if summary.Span != 3*time.Second {
		t.Errorf("expected 3s span, got %v", summary.Span)
	}
	if summary.AvgDuration != 250*time.Millisecond {
		t.Errorf("expected 250ms average, got %v", summary.AvgDuration)
	}
	if summary.MaxDuration != 400*time.Millisecond {
		t.Errorf("expected 400ms max, got %v", summary.MaxDuration)
	}
}

func TestGenerateSummaryEmpty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.TotalRuns != 0 || summary.AvgDuration != 0 {
		t.Errorf("expected zero summary, got %+v", summary)
	}
	if summary.FailuresByStage == nil || summary.RunsByMode == nil {
		t.Errorf("expected maps to be initialized")
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{
		TotalRuns: 5,
	}
	var buf bytes.Buffer
	err := WriteJSON(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"total_runs": 5`) {
		t.Errorf("expected JSON to contain total_runs: 5, got %s", buf.String())
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		TotalRuns: 5,
		Successes: 4,
		Failures:  1,
		FailuresByStage: map[string]int{
			"summarization": 1,
		},
		RunsByMode: map[string]int{
			"pipeline": 5,
		},
	}
	var buf bytes.Buffer
	err := WriteText(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Total Runs:    5 (4 ok, 1 failed)") {
		t.Errorf("expected text to contain run totals, got:\n%s", out)
	}
	if !strings.Contains(out, "summarization: 1") {
		t.Errorf("expected text to contain summarization: 1")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		TotalRuns: 10,
		Failures:  2,
		FailuresByStage: map[string]int{
			"<acquisition>": 2,
		},
	}
	var buf bytes.Buffer
	err := WriteHTML(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Tubebrief Run Report</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, "&lt;acquisition&gt;") {
		t.Errorf("expected stage name to be escaped")
	}
	if !strings.Contains(out, "stat-val failed") {
		t.Errorf("expected failure highlight")
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "", Summary{}); err != nil {
		t.Fatalf("default format: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Tubebrief Run Summary") {
		t.Errorf("expected text report by default")
	}

	err := Write(&buf, "yaml", Summary{})
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
