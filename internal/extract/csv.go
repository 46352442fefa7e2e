// Package extract reads source CSV extracts in bounded chunks so the
// loader never holds a whole file in memory.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ems_warehouse/internal/staging"
)

// ErrMissingColumns marks a source file whose header lacks required columns.
var ErrMissingColumns = errors.New("source file missing required columns")

// Chunk is one batch of staged records plus the 1-based row numbers they
// came from.
type Chunk struct {
	Records  []staging.Record
	FirstRow int
	LastRow  int
}

// ValidateHeader checks that the file's header carries every expected
// source column. Extra columns are tolerated and ignored.
func ValidateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range staging.SourceColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Chunks streams the file through fn in batches of at most chunkSize rows.
// Row numbers start at 1 for the first data row. fn returning an error
// stops the read.
func Chunks(path string, chunkSize int, fn func(Chunk) error) error {
	if chunkSize < 1 {
		chunkSize = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := ValidateHeader(header); err != nil {
		return err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	rowNum := 0
	chunk := Chunk{Records: make([]staging.Record, 0, chunkSize), FirstRow: 1}
	flush := func() error {
		if len(chunk.Records) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		chunk = Chunk{Records: make([]staging.Record, 0, chunkSize), FirstRow: rowNum + 1}
		return nil
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", rowNum+1, err)
		}
		rowNum++

		values := make(map[string]string, len(staging.SourceColumns))
		for _, col := range staging.SourceColumns {
			if i, ok := idx[col]; ok && i < len(row) {
				values[col] = row[i]
			}
		}
		chunk.Records = append(chunk.Records, staging.FromMap(values, rowNum))
		chunk.LastRow = rowNum
		if len(chunk.Records) >= chunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// CountRows returns the number of data rows, header excluded.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	n := -1 // header
	for {
		if _, err := r.Read(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		n++
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// FindSourceFiles lists *.csv under dir, newest name last.
func FindSourceFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
