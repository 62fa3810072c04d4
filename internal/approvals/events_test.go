package approvals

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testTx      = common.HexToHash("0xabc")
)

func word(v *big.Int) []byte {
	return common.BigToHash(v).Bytes()
}

func fungibleLog(owner common.Address, amount *big.Int, index uint) types.Log {
	return types.Log{
		Address:     testToken,
		Topics:      []common.Hash{approvalTopic, ownerTopic(owner), ownerTopic(testSpender)},
		Data:        word(amount),
		BlockNumber: 100,
		TxHash:      testTx,
		Index:       index,
	}
}

func nonFungibleLog(owner common.Address, tokenID int64, index uint) types.Log {
	return types.Log{
		Address:     testToken,
		Topics:      []common.Hash{approvalTopic, ownerTopic(owner), ownerTopic(testSpender), common.BigToHash(big.NewInt(tokenID))},
		BlockNumber: 101,
		TxHash:      testTx,
		Index:       index,
	}
}

func blanketLog(owner common.Address, approved bool, index uint) types.Log {
	flag := big.NewInt(0)
	if approved {
		flag = big.NewInt(1)
	}
	return types.Log{
		Address:     testToken,
		Topics:      []common.Hash{approvalForAllTopic, ownerTopic(owner), ownerTopic(testSpender)},
		Data:        word(flag),
		BlockNumber: 102,
		TxHash:      testTx,
		Index:       index,
	}
}

func signature(kind models.ApprovalKind) Signature {
	for _, s := range Signatures {
		if s.Kind == kind {
			return s
		}
	}
	panic("unknown kind " + string(kind))
}

func TestSignatures_SharedTopic(t *testing.T) {
	if signature(models.KindFungible).Topic != signature(models.KindNonFungible).Topic {
		t.Error("fungible and non-fungible Approval should share topic0")
	}
	want := common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
	if approvalTopic != want {
		t.Errorf("Approval topic = %s, want %s", approvalTopic.Hex(), want.Hex())
	}
	wantAll := common.HexToHash("0x17307eab39ab6107e8899845ad3d59bd9653f200f220920489ca2b5937696c31")
	if approvalForAllTopic != wantAll {
		t.Errorf("ApprovalForAll topic = %s, want %s", approvalForAllTopic.Hex(), wantAll.Hex())
	}
}

func TestDecode_Fungible(t *testing.T) {
	event, err := signature(models.KindFungible).Decode(fungibleLog(testOwner, big.NewInt(500), 3))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	a, ok := event.Approval.(models.FungibleApproval)
	if !ok {
		t.Fatalf("Approval type = %T, want FungibleApproval", event.Approval)
	}
	if a.Spender != testSpender || a.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("approval = %+v", a)
	}
	if event.Owner != testOwner || event.Token != testToken {
		t.Errorf("owner/token = %s/%s", event.Owner.Hex(), event.Token.Hex())
	}
	if event.BlockNumber != 100 || event.LogIndex != 3 || event.TxHash != testTx {
		t.Errorf("position = block %d index %d tx %s", event.BlockNumber, event.LogIndex, event.TxHash.Hex())
	}
}

func TestDecode_NonFungible(t *testing.T) {
	event, err := signature(models.KindNonFungible).Decode(nonFungibleLog(testOwner, 77, 0))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	a, ok := event.Approval.(models.NonFungibleApproval)
	if !ok {
		t.Fatalf("Approval type = %T, want NonFungibleApproval", event.Approval)
	}
	if a.Approved != testSpender || a.TokenID.Int64() != 77 {
		t.Errorf("approval = %+v", a)
	}
	if event.Spender() != testSpender {
		t.Errorf("Spender() = %s", event.Spender().Hex())
	}
}

func TestDecode_Blanket(t *testing.T) {
	for _, approved := range []bool{true, false} {
		event, err := signature(models.KindBlanket).Decode(blanketLog(testOwner, approved, 1))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		a, ok := event.Approval.(models.BlanketApproval)
		if !ok {
			t.Fatalf("Approval type = %T, want BlanketApproval", event.Approval)
		}
		if a.Operator != testSpender || a.Approved != approved {
			t.Errorf("approval = %+v, want approved=%v", a, approved)
		}
	}
}

func TestDecode_LayoutMismatch(t *testing.T) {
	dirty := fungibleLog(testOwner, big.NewInt(1), 0)
	dirty.Topics[2] = common.HexToHash("0xff00000000000000000000002222222222222222222222222222222222222222")

	noTopics := fungibleLog(testOwner, big.NewInt(1), 0)
	noTopics.Topics = nil

	shortData := fungibleLog(testOwner, big.NewInt(1), 0)
	shortData.Data = shortData.Data[:16]

	tests := []struct {
		name string
		kind models.ApprovalKind
		log  types.Log
	}{
		{"fungible log read as non-fungible", models.KindNonFungible, fungibleLog(testOwner, big.NewInt(1), 0)},
		{"non-fungible log read as fungible", models.KindFungible, nonFungibleLog(testOwner, 1, 0)},
		{"blanket log read as fungible", models.KindFungible, blanketLog(testOwner, true, 0)},
		{"dirty spender topic", models.KindFungible, dirty},
		{"no topics", models.KindFungible, noTopics},
		{"short data", models.KindFungible, shortData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signature(tt.kind).Decode(tt.log)
			if !errors.Is(err, config.ErrDecodeFailure) {
				t.Errorf("Decode() error = %v, want ErrDecodeFailure", err)
			}
		})
	}
}

func TestSignature_Sibling(t *testing.T) {
	tests := []struct {
		name string
		kind models.ApprovalKind
		log  types.Log
		want bool
	}{
		{"non-fungible log in fungible query", models.KindFungible, nonFungibleLog(testOwner, 1, 0), true},
		{"fungible log in non-fungible query", models.KindNonFungible, fungibleLog(testOwner, big.NewInt(1), 0), true},
		{"own layout", models.KindFungible, fungibleLog(testOwner, big.NewInt(1), 0), false},
		{"blanket has no sibling", models.KindBlanket, nonFungibleLog(testOwner, 1, 0), false},
		{"blanket log in fungible query", models.KindFungible, blanketLog(testOwner, true, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signature(tt.kind).Sibling(tt.log); got != tt.want {
				t.Errorf("Sibling() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if got := Label(models.KindBlanket); got != "ERC721 ApprovalForAll" {
		t.Errorf("Label(blanket) = %q", got)
	}
	if got := Label("other"); got != "other" {
		t.Errorf("Label(other) = %q", got)
	}
}
