package revoke

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/ethereum/go-ethereum/common"
)

func TestBatch_AddRemoveClear(t *testing.T) {
	b := NewBatch()

	first := b.Add("revoke operator", Action{Kind: ActionRevokeBlanket, Token: tokenTKN, Target: spender})
	second := b.Add("revoke spender", Action{Kind: ActionRevokeFungible, Token: tokenTKN, Target: spender})
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("ids = %q, %q, want distinct non-empty", first.ID, second.ID)
	}

	items := b.List()
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("List() = %+v", items)
	}

	if !b.Remove(first.ID) {
		t.Error("Remove() of a queued id should succeed")
	}
	if b.Remove(first.ID) {
		t.Error("Remove() of an unknown id should report false")
	}
	if items := b.List(); len(items) != 1 || items[0].ID != second.ID {
		t.Errorf("after remove List() = %+v", items)
	}

	b.Clear()
	if len(b.List()) != 0 {
		t.Error("Clear() should empty the batch")
	}
}

func TestBatch_ListIsACopy(t *testing.T) {
	b := NewBatch()
	b.Add("a", Action{Kind: ActionRevokeBlanket})

	items := b.List()
	items[0].Label = "mutated"
	if b.List()[0].Label != "a" {
		t.Error("mutating List() output must not change the batch")
	}
}

func TestBatch_SubmitAllPartialSuccess(t *testing.T) {
	b := NewBatch()
	ok := b.Add("ok", Action{Kind: ActionRevokeBlanket, Token: tokenTKN, Target: spender})
	bad := b.Add("missing spender", Action{Kind: ActionRevokeFungible, Token: tokenTKN})
	last := b.Add("ok too", Action{Kind: ActionRevokeNonFungible, Token: tokenTKN, TokenID: "1"})

	session := &fakeSession{address: sender}
	results, err := b.SubmitAll(context.Background(), NewSubmitter(nil, nil), session)
	if err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != ok.ID || results[0].TxHash == "" {
		t.Errorf("first = %+v", results[0])
	}
	if results[1].ID != bad.ID || results[1].Code != config.ErrorPreconditionUnmet {
		t.Errorf("second = %+v", results[1])
	}
	if results[2].ID != last.ID || results[2].TxHash == "" {
		t.Errorf("third = %+v", results[2])
	}
	if session.calls != 2 {
		t.Errorf("session called %d times, want 2", session.calls)
	}

	remaining := b.List()
	if len(remaining) != 1 || remaining[0].ID != bad.ID {
		t.Errorf("remaining = %+v, want only the failed item", remaining)
	}
}

func TestBatch_SubmitAllRejected(t *testing.T) {
	b := NewBatch()
	b.Add("x", Action{Kind: ActionRevokeBlanket, Token: tokenTKN, Target: spender})

	session := &fakeSession{address: sender, err: errors.New("user rejected the request")}
	results, err := b.SubmitAll(context.Background(), NewSubmitter(nil, nil), session)
	if err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}

	if results[0].Code != config.ErrorSubmissionRejected {
		t.Errorf("code = %s, want %s", results[0].Code, config.ErrorSubmissionRejected)
	}
	if len(b.List()) != 1 {
		t.Error("a rejected item stays queued")
	}
}

// gatedSession blocks every send until release is closed.
type gatedSession struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedSession) Address() common.Address { return sender }
func (g *gatedSession) ChainID() uint64         { return config.ChainIDSepolia }

func (g *gatedSession) SignAndSend(context.Context, common.Address, []byte) (common.Hash, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	g.started <- struct{}{}
	<-g.release
	return common.HexToHash("0xfeed"), nil
}

func TestBatch_SubmitAllOverlappingCallIsRefused(t *testing.T) {
	b := NewBatch()
	b.Add("transfer", Action{Kind: ActionTransferFungible, Token: tokenTKN, Target: spender, Amount: "1"})

	session := &gatedSession{started: make(chan struct{}, 1), release: make(chan struct{})}
	sub := NewSubmitter(nil, nil)

	type outcome struct {
		results []BatchResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := b.SubmitAll(context.Background(), sub, session)
		done <- outcome{results, err}
	}()

	<-session.started

	results, err := b.SubmitAll(context.Background(), sub, session)
	if !errors.Is(err, config.ErrSubmissionBusy) {
		t.Fatalf("overlapping SubmitAll() error = %v, want ErrSubmissionBusy", err)
	}
	if results != nil {
		t.Errorf("overlapping SubmitAll() results = %+v, want nil", results)
	}

	close(session.release)
	first := <-done
	if first.err != nil {
		t.Fatalf("first SubmitAll() error = %v", first.err)
	}
	if len(first.results) != 1 || first.results[0].TxHash == "" {
		t.Errorf("first results = %+v", first.results)
	}

	if session.calls != 1 {
		t.Errorf("session sent %d transactions, want 1", session.calls)
	}
	if n := len(b.List()); n != 0 {
		t.Errorf("queue holds %d items, want 0", n)
	}

	// The lock is released once the first call returns.
	if _, err := b.SubmitAll(context.Background(), sub, session); err != nil {
		t.Errorf("SubmitAll() after completion error = %v", err)
	}
}
