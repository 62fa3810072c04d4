package approvals

import (
	"fmt"
	"math/big"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// The fungible and non-fungible Approval events share a topic0; they differ
// only in whether the third argument is indexed.
const eventsJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"operator","type":"address"},{"indexed":false,"name":"approved","type":"bool"}],"name":"ApprovalForAll","type":"event"}
]`

var eventsABI = tokens.MustParseABI(eventsJSON)

var (
	approvalTopic       = eventsABI.Events["Approval"].ID
	approvalForAllTopic = eventsABI.Events["ApprovalForAll"].ID
)

// Signature is one log query the pipeline issues per block range.
type Signature struct {
	Kind   models.ApprovalKind
	Label  string
	Topic  common.Hash
	topics int // topic count of this layout
	decode func(types.Log) (models.Approval, error)
}

// Signatures lists the queries in the order their results are merged.
var Signatures = []Signature{
	{Kind: models.KindFungible, Label: "ERC20 Approval", Topic: approvalTopic, topics: 3, decode: decodeFungible},
	{Kind: models.KindNonFungible, Label: "ERC721 Approval", Topic: approvalTopic, topics: 4, decode: decodeNonFungible},
	{Kind: models.KindBlanket, Label: "ERC721 ApprovalForAll", Topic: approvalForAllTopic, topics: 3, decode: decodeBlanket},
}

// Label returns the display label for an approval variant.
func Label(kind models.ApprovalKind) string {
	for _, s := range Signatures {
		if s.Kind == kind {
			return s.Label
		}
	}
	return string(kind)
}

// Sibling reports whether log has the layout of another signature sharing
// this one's topic0. Such logs are answered by that signature's own query.
func (s Signature) Sibling(log types.Log) bool {
	if len(log.Topics) == 0 || log.Topics[0] != s.Topic || len(log.Topics) == s.topics {
		return false
	}
	for _, other := range Signatures {
		if other.Kind != s.Kind && other.Topic == s.Topic && other.topics == len(log.Topics) {
			return true
		}
	}
	return false
}

// Decode turns a raw log into an ApprovalEvent using the signature's layout.
// A log with a different topic count or data length is ErrDecodeFailure.
func (s Signature) Decode(log types.Log) (models.ApprovalEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != s.Topic {
		return models.ApprovalEvent{}, fmt.Errorf("%w: %s: unexpected topic0", config.ErrDecodeFailure, s.Label)
	}
	if len(log.Topics) < 2 {
		return models.ApprovalEvent{}, fmt.Errorf("%w: %s: missing owner topic", config.ErrDecodeFailure, s.Label)
	}
	owner, err := topicAddress(log.Topics[1])
	if err != nil {
		return models.ApprovalEvent{}, fmt.Errorf("%w: %s owner: %v", config.ErrDecodeFailure, s.Label, err)
	}

	approval, err := s.decode(log)
	if err != nil {
		return models.ApprovalEvent{}, fmt.Errorf("%w: %s: %v", config.ErrDecodeFailure, s.Label, err)
	}

	return models.ApprovalEvent{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Token:       log.Address,
		Owner:       owner,
		Approval:    approval,
	}, nil
}

func decodeFungible(log types.Log) (models.Approval, error) {
	if len(log.Topics) != 3 || len(log.Data) != 32 {
		return nil, fmt.Errorf("want 3 topics and 32 data bytes, got %d and %d", len(log.Topics), len(log.Data))
	}
	spender, err := topicAddress(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("spender: %w", err)
	}
	values, err := eventsABI.Unpack("Approval", log.Data)
	if err != nil {
		return nil, err
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("value has type %T", values[0])
	}
	return models.FungibleApproval{Spender: spender, Amount: amount}, nil
}

func decodeNonFungible(log types.Log) (models.Approval, error) {
	if len(log.Topics) != 4 || len(log.Data) != 0 {
		return nil, fmt.Errorf("want 4 topics and no data, got %d and %d bytes", len(log.Topics), len(log.Data))
	}
	approved, err := topicAddress(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("approved: %w", err)
	}
	return models.NonFungibleApproval{Approved: approved, TokenID: log.Topics[3].Big()}, nil
}

func decodeBlanket(log types.Log) (models.Approval, error) {
	if len(log.Topics) != 3 || len(log.Data) != 32 {
		return nil, fmt.Errorf("want 3 topics and 32 data bytes, got %d and %d", len(log.Topics), len(log.Data))
	}
	operator, err := topicAddress(log.Topics[2])
	if err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	values, err := eventsABI.Unpack("ApprovalForAll", log.Data)
	if err != nil {
		return nil, err
	}
	approved, ok := values[0].(bool)
	if !ok {
		return nil, fmt.Errorf("approved has type %T", values[0])
	}
	return models.BlanketApproval{Operator: operator, Approved: approved}, nil
}

// topicAddress decodes an indexed address, rejecting dirty upper bytes.
func topicAddress(topic common.Hash) (common.Address, error) {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("topic %s is not a left-padded address", topic.Hex())
		}
	}
	return common.BytesToAddress(topic[common.HashLength-common.AddressLength:]), nil
}

// ownerTopic left-pads an address into an indexed topic filter.
func ownerTopic(owner common.Address) common.Hash {
	return common.BytesToHash(owner.Bytes())
}
