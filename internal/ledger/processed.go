package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type processedRecord struct {
	Key string `json:"key"`
}

// ProcessedStore is the append-only cross-run set of processed attachment
// keys, persisted as one JSON object per line. Keys are never removed.
type ProcessedStore struct {
	path string
	keys map[string]struct{}
}

// OpenProcessedStore loads the full key set into memory. A missing file is an
// empty store; malformed lines are skipped rather than failing the run.
func OpenProcessedStore(path string) (*ProcessedStore, error) {
	ps := &ProcessedStore{
		path: path,
		keys: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open processed store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec processedRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.Key == "" {
			continue
		}
		ps.keys[rec.Key] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read processed store: %w", err)
	}

	return ps, nil
}

// Has reports whether key has already been recorded, in this run or a
// previous one.
func (ps *ProcessedStore) Has(key string) bool {
	_, ok := ps.keys[key]
	return ok
}

// Len returns the number of known keys.
func (ps *ProcessedStore) Len() int {
	return len(ps.keys)
}

func (ps *ProcessedStore) add(key string) {
	ps.keys[key] = struct{}{}
}

// appendKeys durably appends the given keys, one record per line.
func (ps *ProcessedStore) appendKeys(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(ps.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.OpenFile(ps.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open processed store for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, key := range keys {
		line, err := json.Marshal(processedRecord{Key: key})
		if err != nil {
			return fmt.Errorf("failed to serialize processed key: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append processed key: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush processed store: %w", err)
	}

	return nil
}
