package jsonbackend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
)

func TestJSONBackend(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "runs.jsonl")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond).UTC()

	run1 := &storage.RunRecord{
		ID:         "json1",
		Keyword:    "cats",
		MaxResults: 3,
		Mode:       "pipeline",
		Success:    true,
		Records:    3,
		Duration:   10 * time.Millisecond,
		CreatedAt:  now.Add(-2 * time.Hour),
	}

	run2 := &storage.RunRecord{
		ID:         "json2",
		Keyword:    "dogs",
		MaxResults: 10,
		Mode:       "pipeline",
		Success:    false,
		Stage:      "acquisition",
		Error:      "scraper exited with code 1: network timeout",
		Duration:   20 * time.Millisecond,
		CreatedAt:  now.Add(-1 * time.Hour),
	}

	if err := b.Save(ctx, run1); err != nil {
		t.Fatalf("Failed to save run 1: %v", err)
	}
	if err := b.Save(ctx, run2); err != nil {
		t.Fatalf("Failed to save run 2: %v", err)
	}

	// Keyword filter
	resultsKeyword, err := b.Query(ctx, storage.Filter{Keyword: "dogs"})
	if err != nil {
		t.Fatalf("Failed to query by keyword: %v", err)
	}
	if len(resultsKeyword) != 1 {
		t.Fatalf("Expected 1 result for keyword filter, got %d", len(resultsKeyword))
	}
	if resultsKeyword[0].Stage != "acquisition" {
		t.Errorf("Expected stage acquisition, got %q", resultsKeyword[0].Stage)
	}
	if resultsKeyword[0].Duration != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %v", resultsKeyword[0].Duration)
	}

	// Success filter
	boolTrue := true
	resultsOK, err := b.Query(ctx, storage.Filter{Success: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query by success: %v", err)
	}
	if len(resultsOK) != 1 || resultsOK[0].ID != "json1" {
		t.Fatalf("Expected only json1 for success filter, got %v", resultsOK)
	}

	// Since filter
	past := now.Add(-90 * time.Minute)
	resultsSince, err := b.Query(ctx, storage.Filter{Since: &past})
	if err != nil {
		t.Fatalf("Failed to query by Since: %v", err)
	}
	if len(resultsSince) != 1 {
		t.Fatalf("Expected 1 result for Since filter, got %d", len(resultsSince))
	}
	if resultsSince[0].ID != "json2" {
		t.Errorf("Expected ID json2, got %s", resultsSince[0].ID)
	}

	// No filters, newest first
	resultsAll, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(resultsAll) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(resultsAll))
	}
	if resultsAll[0].ID != "json2" {
		t.Errorf("Expected json2 first, got %s", resultsAll[0].ID)
	}

	resultsLimit, err := b.Query(ctx, storage.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query limit: %v", err)
	}
	if len(resultsLimit) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsLimit))
	}

	resultsOffset, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query offset: %v", err)
	}
	if len(resultsOffset) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(resultsOffset))
	}
	if resultsOffset[0].ID != "json1" {
		t.Errorf("Expected json1 for offset 1, got %s", resultsOffset[0].ID)
	}
}

func TestJSONBackendReopen(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.jsonl")
	ctx := context.Background()

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Save(ctx, storage.NewRunRecord("cats", 3, "acquire")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b.Close()

	b, err = New(filePath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()

	results, err := b.Query(ctx, storage.Filter{Mode: "acquire"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected persisted run after reopen, got %d", len(results))
	}
}

func TestJSONBackend_OversizedRecord(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "runs.jsonl"))
	if err != nil {
		t.Fatalf("Failed to create JSON backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	big := &storage.RunRecord{
		ID:        "big",
		Keyword:   "dogs",
		Mode:      "pipeline",
		Stage:     "acquisition",
		Error:     strings.Repeat("x", 200<<10),
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	small := &storage.RunRecord{ID: "small", Keyword: "cats", Mode: "pipeline", Success: true, CreatedAt: time.Now().UTC()}

	if err := b.Save(ctx, big); err != nil {
		t.Fatalf("Failed to save oversized run: %v", err)
	}
	if err := b.Save(ctx, small); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query failed after an oversized record: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(results))
	}
	if results[1].ID != "big" || len(results[1].Error) != 200<<10 {
		t.Errorf("Expected oversized error preserved, got ID %s with %d bytes", results[1].ID, len(results[1].Error))
	}
}
