package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/tubebrief/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"keyword",
	"max_results",
	"mode",
	"success",
	"stage",
	"error",
	"records",
	"duration_ms",
	"created_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, r *storage.RunRecord) error {
	row := []string{
		r.ID,
		r.Keyword,
		strconv.Itoa(r.MaxResults),
		r.Mode,
		strconv.FormatBool(r.Success),
		r.Stage,
		r.Error,
		strconv.Itoa(r.Records),
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
		r.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.RunRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	reader := csv.NewReader(b.file)

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.RunRecord{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.RunRecord

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}

		if len(row) != len(headers) {
			continue // skip malformed rows
		}

		r := parseRow(row)
		if filter.Match(r) {
			matched = append(matched, r)
		}
	}

	return filter.Page(matched), nil
}

func parseRow(row []string) *storage.RunRecord {
	maxResults, _ := strconv.Atoi(row[2])
	success, _ := strconv.ParseBool(row[4])
	records, _ := strconv.Atoi(row[7])
	durationMs, _ := strconv.ParseInt(row[8], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, row[9])

	return &storage.RunRecord{
		ID:         row[0],
		Keyword:    row[1],
		MaxResults: maxResults,
		Mode:       row[3],
		Success:    success,
		Stage:      row[5],
		Error:      row[6],
		Records:    records,
		Duration:   time.Duration(durationMs) * time.Millisecond,
		CreatedAt:  createdAt,
	}
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
