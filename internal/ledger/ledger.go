// Package ledger holds the two-tier deduplication state for a batch run: the
// cross-run set of processed attachment keys and the per-lot content hash
// index. Both are loaded at the start of a run, mutated in memory, and
// flushed once at the end.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
)

// Key forms the durable identity of one attachment object on one message.
func Key(messageID, attachmentID string) string {
	return messageID + ":" + attachmentID
}

// Ledger is the dedup session for a single run. It is owned by the batch
// assembler; the mutex only guards against an implementation later fetching
// in parallel, the processing order itself stays sequential.
type Ledger struct {
	logger    *slog.Logger
	mu        sync.Mutex
	processed *ProcessedStore
	pending   []string
	index     *HashIndex // nil when the run produces no lot
}

// Open loads both stores. lotDir may be empty when the run writes no output;
// the hash index is then absent and SeenHash always reports false.
func Open(processedPath, lotDir string, logger *slog.Logger) (*Ledger, error) {
	processed, err := OpenProcessedStore(processedPath)
	if err != nil {
		return nil, err
	}

	var index *HashIndex
	if lotDir != "" {
		index, err = OpenHashIndex(lotDir)
		if err != nil {
			return nil, err
		}
	}

	lotHashes := 0
	if index != nil {
		lotHashes = index.Len()
	}
	logger.Debug("ledger loaded",
		"processed_keys", processed.Len(),
		"lot_hashes", lotHashes,
	)

	return &Ledger{
		logger:    logger,
		processed: processed,
		index:     index,
	}, nil
}

// AlreadyProcessed reports whether the key was handled by a previous run or
// earlier in this one. Consulted before any fetch.
func (l *Ledger) AlreadyProcessed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed.Has(key)
}

// MarkProcessed records the key in memory; it becomes durable on Flush.
func (l *Ledger) MarkProcessed(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.processed.Has(key) {
		return
	}
	l.processed.add(key)
	l.pending = append(l.pending, key)
}

// SeenHash reports whether identical content was already saved in this lot.
func (l *Ledger) SeenHash(hash string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index != nil && l.index.Has(hash)
}

// RecordHash claims a fingerprint for this lot, effective immediately for
// subsequent SeenHash calls in the same run.
func (l *Ledger) RecordHash(hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.index != nil {
		l.index.Add(hash)
	}
}

// Flush appends the run's accumulated keys to the processed store and
// rewrites the lot's hash index. Called once, after the full batch completes;
// a crash before Flush loses the run's bookkeeping but never corrupts it.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.processed.appendKeys(l.pending); err != nil {
		return fmt.Errorf("failed to flush processed keys: %w", err)
	}
	flushed := len(l.pending)
	l.pending = nil

	if l.index != nil {
		if err := l.index.Save(); err != nil {
			return fmt.Errorf("failed to flush hash index: %w", err)
		}
	}

	l.logger.Debug("ledger flushed", "new_keys", flushed)
	return nil
}
