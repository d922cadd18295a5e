package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const hashIndexName = ".hashes.json"

// HashIndex is the per-lot set of content fingerprints already saved to disk,
// persisted as a JSON array and fully rewritten on each flush.
type HashIndex struct {
	path   string
	hashes map[string]struct{}
}

// OpenHashIndex loads the lot's fingerprint set. A missing or unreadable
// index is treated as empty; dedup then degrades to redundant fetches, never
// to duplicate files.
func OpenHashIndex(lotDir string) (*HashIndex, error) {
	hi := &HashIndex{
		path:   filepath.Join(lotDir, hashIndexName),
		hashes: make(map[string]struct{}),
	}

	data, err := os.ReadFile(hi.path)
	if errors.Is(err, os.ErrNotExist) {
		return hi, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hash index: %w", err)
	}

	var hashes []string
	if err := json.Unmarshal(data, &hashes); err != nil {
		return hi, nil
	}
	for _, h := range hashes {
		hi.hashes[h] = struct{}{}
	}

	return hi, nil
}

// Has reports whether the fingerprint is already claimed within this lot.
func (hi *HashIndex) Has(hash string) bool {
	_, ok := hi.hashes[hash]
	return ok
}

// Add claims a fingerprint for this lot.
func (hi *HashIndex) Add(hash string) {
	hi.hashes[hash] = struct{}{}
}

// Len returns the number of known fingerprints.
func (hi *HashIndex) Len() int {
	return len(hi.hashes)
}

// Save rewrites the index file with the full fingerprint set, sorted for
// stable output.
func (hi *HashIndex) Save() error {
	hashes := make([]string, 0, len(hi.hashes))
	for h := range hi.hashes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	data, err := json.Marshal(hashes)
	if err != nil {
		return fmt.Errorf("failed to serialize hash index: %w", err)
	}
	if err := os.WriteFile(hi.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hash index: %w", err)
	}

	return nil
}
