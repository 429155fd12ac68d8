package report

import (
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
)

// ErrUnknownFormat is returned by Write for a format other than text, json or html.
var ErrUnknownFormat = errors.New("report: unknown format")

// Summary contains aggregated metrics about recorded pipeline runs.
type Summary struct {
	TotalRuns       int            `json:"total_runs"`
	Successes       int            `json:"successes"`
	Failures        int            `json:"failures"`
	FailuresByStage map[string]int `json:"failures_by_stage"`
	RunsByMode      map[string]int `json:"runs_by_mode"`
	TotalRecords    int            `json:"total_records"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Span            time.Duration  `json:"span"`
	AvgDuration     time.Duration  `json:"avg_duration"`
	MaxDuration     time.Duration  `json:"max_duration"`
}

// GenerateSummary processes a slice of run records to generate summary metrics.
func GenerateSummary(runs []*storage.RunRecord) Summary {
	s := Summary{
		FailuresByStage: make(map[string]int),
		RunsByMode:      make(map[string]int),
	}

	if len(runs) == 0 {
		return s
	}

	s.StartTime = runs[0].CreatedAt
	s.EndTime = runs[0].CreatedAt

	var total time.Duration
	for _, r := range runs {
		s.TotalRuns++
		s.RunsByMode[r.Mode]++
		if r.Success {
			s.Successes++
		} else {
			s.Failures++
			s.FailuresByStage[r.Stage]++
		}
		s.TotalRecords += r.Records

		total += r.Duration
		if r.Duration > s.MaxDuration {
			s.MaxDuration = r.Duration
		}

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Span = s.EndTime.Sub(s.StartTime)
	s.AvgDuration = total / time.Duration(s.TotalRuns)
	return s
}

// Write renders summary in the named format.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `Tubebrief Run Summary
---------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Span:          {{.Span}}
Total Runs:    {{.TotalRuns}} ({{.Successes}} ok, {{.Failures}} failed)
Records:       {{.TotalRecords}}
Avg Duration:  {{.AvgDuration}}
Max Duration:  {{.MaxDuration}}

Runs By Mode:
{{- range $mode, $count := .RunsByMode}}
  {{$mode}}: {{$count}}
{{- else}}
  None
{{- end}}

Failures By Stage:
{{- range $stage, $count := .FailuresByStage}}
  {{$stage}}: {{$count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}

	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Tubebrief Run Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  .failed { color: red; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Tubebrief Run Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Span}})</p>

  <div class="stat-card">
    <div>Total Runs</div>
    <div class="stat-val">{{.TotalRuns}}</div>
  </div>
  <div class="stat-card">
    <div>Failures</div>
    <div class="stat-val{{if gt .Failures 0}} failed{{end}}">{{.Failures}}</div>
  </div>
  <div class="stat-card">
    <div>Records</div>
    <div class="stat-val">{{.TotalRecords}}</div>
  </div>
  <div class="stat-card">
    <div>Avg Duration</div>
    <div class="stat-val">{{.AvgDuration}}</div>
  </div>

  <h3>Runs By Mode</h3>
  <table>
    <tr><th>Mode</th><th>Count</th></tr>
    {{- range $mode, $count := .RunsByMode}}
    <tr><td>{{$mode}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Failures By Stage</h3>
  <table>
    <tr><th>Stage</th><th>Count</th></tr>
    {{- range $stage, $count := .FailuresByStage}}
    <tr><td>{{$stage}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}

	return nil
}
