package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunRecord describes one finished request. It never holds acquired records
// or summaries; history is for auditing, not caching.
type RunRecord struct {
	ID         string        `json:"id"`
	Keyword    string        `json:"keyword"`
	MaxResults int           `json:"max_results"`
	Mode       string        `json:"mode"` // "pipeline" or "acquire"
	Success    bool          `json:"success"`
	Stage      string        `json:"stage,omitempty"` // failing stage; empty on success
	Error      string        `json:"error,omitempty"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewRunRecord stamps a fresh ID and creation time.
func NewRunRecord(keyword string, maxResults int, mode string) *RunRecord {
	return &RunRecord{
		ID:         uuid.New().String(),
		Keyword:    keyword,
		MaxResults: maxResults,
		Mode:       mode,
		CreatedAt:  time.Now().UTC(),
	}
}

// Filter allows querying for specific RunRecords.
type Filter struct {
	Keyword string
	Mode    string
	Success *bool
	Since   *time.Time
	Limit   int
	Offset  int
}

// Match reports whether r passes the filter's predicates (not Limit/Offset).
func (f Filter) Match(r *RunRecord) bool {
	if f.Keyword != "" && r.Keyword != f.Keyword {
		return false
	}
	if f.Mode != "" && r.Mode != f.Mode {
		return false
	}
	if f.Success != nil && r.Success != *f.Success {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies newest-first ordering, Offset and Limit to records that are
// stored oldest-first.
func (f Filter) Page(records []*RunRecord) []*RunRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	if f.Offset > 0 {
		if f.Offset >= len(records) {
			return []*RunRecord{}
		}
		records = records[f.Offset:]
	}

	if f.Limit > 0 && f.Limit < len(records) {
		records = records[:f.Limit]
	}

	return records
}

// Backend defines the interface for storing and querying run history.
type Backend interface {
	Save(ctx context.Context, record *RunRecord) error
	Query(ctx context.Context, filter Filter) ([]*RunRecord, error)
	Close() error
}
