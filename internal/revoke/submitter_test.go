package revoke

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// fakeSession records what it was asked to send.
type fakeSession struct {
	address common.Address
	err     error

	calls int
	to    common.Address
	data  []byte
}

func (f *fakeSession) Address() common.Address { return f.address }
func (f *fakeSession) ChainID() uint64         { return config.ChainIDSepolia }

func (f *fakeSession) SignAndSend(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	f.calls++
	f.to, f.data = to, data
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0xfeed"), nil
}

type memLedger struct {
	entries []models.Submission
	err     error
}

func (m *memLedger) InsertSubmission(_ context.Context, s models.Submission) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.entries = append(m.entries, s)
	return int64(len(m.entries)), nil
}

func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack reason: %v", err)
	}
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func blanketEvent() models.ApprovalEvent {
	return models.ApprovalEvent{
		Token:    tokenTKN,
		Owner:    sender,
		Approval: models.BlanketApproval{Operator: spender, Approved: true},
	}
}

func TestSubmitter_RevokeWithoutSessionMakesNoCalls(t *testing.T) {
	backend := &fakeBackend{}
	ledger := &memLedger{}
	s := NewSubmitter(ledger, nil)

	_, err := s.Revoke(context.Background(), nil, blanketEvent())
	if !errors.Is(err, config.ErrPreconditionUnmet) {
		t.Errorf("error = %v, want ErrPreconditionUnmet", err)
	}

	// A session with no address is equally unusable.
	var noAddr WalletSession = &fakeSession{}
	if _, err := s.Revoke(context.Background(), noAddr, blanketEvent()); !errors.Is(err, config.ErrPreconditionUnmet) {
		t.Errorf("error = %v, want ErrPreconditionUnmet", err)
	}
	if noAddr.(*fakeSession).calls != 0 || backend.calls != 0 {
		t.Error("no network call may precede a precondition failure")
	}
	if len(ledger.entries) != 0 {
		t.Error("precondition failures are not recorded")
	}
}

func TestSubmitter_RevokeDispatch(t *testing.T) {
	tests := []struct {
		name     string
		approval models.Approval
		kind     ActionKind
		method   string
	}{
		{"fungible", models.FungibleApproval{Spender: spender, Amount: big.NewInt(5)}, ActionRevokeFungible, "approve"},
		{"non-fungible", models.NonFungibleApproval{Approved: spender, TokenID: big.NewInt(9)}, ActionRevokeNonFungible, "approve"},
		{"blanket", models.BlanketApproval{Operator: spender, Approved: true}, ActionRevokeBlanket, "setApprovalForAll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{address: sender}
			ledger := &memLedger{}
			m := metrics.New()
			s := NewSubmitter(ledger, m)

			event := models.ApprovalEvent{Token: tokenTKN, Owner: sender, Approval: tt.approval}
			hash, err := s.Revoke(context.Background(), session, event)
			if err != nil {
				t.Fatalf("Revoke() error = %v", err)
			}
			if hash != common.HexToHash("0xfeed") {
				t.Errorf("hash = %s", hash.Hex())
			}
			if session.to != tokenTKN {
				t.Errorf("sent to %s, want token contract", session.to.Hex())
			}
			method, err := erc721ABI.MethodById(session.data[:4])
			if err != nil || method.Name != tt.method {
				t.Errorf("method = %v (%v), want %s", method, err, tt.method)
			}

			if len(ledger.entries) != 1 {
				t.Fatalf("ledger has %d entries, want 1", len(ledger.entries))
			}
			entry := ledger.entries[0]
			if entry.Kind != string(tt.kind) || entry.Status != StatusSubmitted || entry.TxHash != hash.Hex() {
				t.Errorf("ledger entry = %+v", entry)
			}
		})
	}
}

func TestSubmitter_Rejected(t *testing.T) {
	session := &fakeSession{
		address: sender,
		err:     revertError{msg: "execution reverted", data: revertData(t, "not owner")},
	}
	ledger := &memLedger{}
	s := NewSubmitter(ledger, nil)

	_, err := s.Revoke(context.Background(), session, blanketEvent())
	if !errors.Is(err, config.ErrSubmissionRejected) {
		t.Fatalf("error = %v, want ErrSubmissionRejected", err)
	}
	if !strings.Contains(err.Error(), "execution reverted: not owner") {
		t.Errorf("error %q should carry the revert reason", err)
	}

	if len(ledger.entries) != 1 || ledger.entries[0].Status != StatusRejected {
		t.Fatalf("ledger = %+v, want one rejected entry", ledger.entries)
	}
	if ledger.entries[0].Error != "execution reverted: not owner" {
		t.Errorf("ledger error = %q", ledger.entries[0].Error)
	}
}

func TestSubmitter_LedgerFailureIsNotSurfaced(t *testing.T) {
	session := &fakeSession{address: sender}
	s := NewSubmitter(&memLedger{err: errors.New("disk full")}, nil)

	if _, err := s.Revoke(context.Background(), session, blanketEvent()); err != nil {
		t.Errorf("Revoke() error = %v, want nil", err)
	}
}

func TestRevertReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"revert data", revertError{msg: "execution reverted", data: revertData(t, "paused")}, "execution reverted: paused"},
		{"wrapped message", errors.New("estimate gas: execution reverted: ERC721: invalid token ID"), "execution reverted: ERC721: invalid token ID"},
		{"other error", errors.New("insufficient funds for gas * price + value"), "insufficient funds for gas * price + value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RevertReason(tt.err); got != tt.want {
				t.Errorf("RevertReason() = %q, want %q", got, tt.want)
			}
		})
	}
}
