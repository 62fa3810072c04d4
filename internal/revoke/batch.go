package revoke

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/google/uuid"
)

// BatchItem is one queued action.
type BatchItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action Action `json:"action"`
}

// BatchResult is the outcome of submitting one queued action.
type BatchResult struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	TxHash string `json:"txHash,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Batch is an ordered queue of actions submitted together.
type Batch struct {
	mu    sync.Mutex
	items []BatchItem

	// held for the whole of SubmitAll
	submitting sync.Mutex
}

func NewBatch() *Batch {
	return &Batch{}
}

// Add appends an action and returns the queued item.
func (b *Batch) Add(label string, action Action) BatchItem {
	item := BatchItem{ID: uuid.NewString(), Label: label, Action: action}

	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()
	return item
}

// Remove drops the item with id and reports whether it was queued.
func (b *Batch) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, item := range b.items {
		if item.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Batch) Clear() {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
}

// List returns a copy of the queue in insertion order.
func (b *Batch) List() []BatchItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BatchItem, len(b.items))
	copy(out, b.items)
	return out
}

// SubmitAll sends every queued action in order and reports each outcome.
// A failing item does not stop the rest. Items that were sent leave the
// queue; failed ones stay for a later attempt. Only one SubmitAll runs at a
// time; an overlapping call fails with ErrSubmissionBusy and sends nothing.
func (b *Batch) SubmitAll(ctx context.Context, s *Submitter, session WalletSession) ([]BatchResult, error) {
	if !b.submitting.TryLock() {
		slog.Warn("batch submission already in progress")
		return nil, fmt.Errorf("%w: batch submission already in progress", config.ErrSubmissionBusy)
	}
	defer b.submitting.Unlock()

	items := b.List()
	results := make([]BatchResult, 0, len(items))
	sent := make(map[string]struct{}, len(items))

	for _, item := range items {
		res := BatchResult{ID: item.ID, Label: item.Label}
		if err := ctx.Err(); err != nil {
			res.Code = config.ErrorCode(err)
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		hash, err := s.Submit(ctx, session, item.Action)
		if err != nil {
			res.Code = config.ErrorCode(err)
			res.Error = err.Error()
		} else {
			res.TxHash = hash.Hex()
			sent[item.ID] = struct{}{}
		}
		results = append(results, res)
	}

	b.mu.Lock()
	kept := b.items[:0]
	for _, item := range b.items {
		if _, ok := sent[item.ID]; !ok {
			kept = append(kept, item)
		}
	}
	b.items = kept
	b.mu.Unlock()

	return results, nil
}
