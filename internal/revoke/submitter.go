package revoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Ledger statuses.
const (
	StatusSubmitted = "submitted"
	StatusRejected  = "rejected"
)

// Recorder persists submission attempts.
type Recorder interface {
	InsertSubmission(ctx context.Context, s models.Submission) (int64, error)
}

// Submitter turns approval events and manual actions into transactions.
type Submitter struct {
	recorder Recorder
	metrics  *metrics.Metrics
}

// NewSubmitter creates a submitter. recorder and m may be nil.
func NewSubmitter(recorder Recorder, m *metrics.Metrics) *Submitter {
	return &Submitter{recorder: recorder, metrics: m}
}

// RevokeAction returns the action that clears the permission event grants.
func RevokeAction(event models.ApprovalEvent) (Action, error) {
	switch a := event.Approval.(type) {
	case models.FungibleApproval:
		return Action{Kind: ActionRevokeFungible, Token: event.Token, Target: a.Spender}, nil
	case models.NonFungibleApproval:
		if a.TokenID == nil {
			return Action{}, precondition("token id is required")
		}
		return Action{Kind: ActionRevokeNonFungible, Token: event.Token, TokenID: a.TokenID.String()}, nil
	case models.BlanketApproval:
		return Action{Kind: ActionRevokeBlanket, Token: event.Token, Target: a.Operator}, nil
	default:
		return Action{}, precondition("event carries no approval")
	}
}

// Revoke clears the permission granted by event.
func (s *Submitter) Revoke(ctx context.Context, session WalletSession, event models.ApprovalEvent) (common.Hash, error) {
	action, err := RevokeAction(event)
	if err != nil {
		return common.Hash{}, err
	}
	return s.Submit(ctx, session, action)
}

// Submit validates action against the session and sends it. Validation
// failures return ErrPreconditionUnmet before any network call; send
// failures return ErrSubmissionRejected.
func (s *Submitter) Submit(ctx context.Context, session WalletSession, action Action) (common.Hash, error) {
	if session == nil {
		return common.Hash{}, precondition("no wallet session")
	}
	from := session.Address()
	if from == (common.Address{}) {
		return common.Hash{}, precondition("wallet session has no address")
	}

	data, err := action.Calldata(from)
	if err != nil {
		return common.Hash{}, err
	}

	hash, sendErr := session.SignAndSend(ctx, action.Token, data)

	entry := models.Submission{
		Kind:    string(action.Kind),
		ChainID: session.ChainID(),
		From:    from.Hex(),
		Token:   action.Token.Hex(),
		Target:  action.Target.Hex(),
		Value:   action.Value(),
	}

	if sendErr != nil {
		reason := RevertReason(sendErr)
		entry.Status = StatusRejected
		entry.Error = reason
		s.record(ctx, entry)
		s.metrics.Submission(string(action.Kind), metrics.ResultError)

		slog.Error("submission rejected",
			"kind", action.Kind,
			"from", from.Hex(),
			"token", action.Token.Hex(),
			"reason", reason,
		)
		return common.Hash{}, fmt.Errorf("%w: %s: %w", config.ErrSubmissionRejected, reason, sendErr)
	}

	entry.Status = StatusSubmitted
	entry.TxHash = hash.Hex()
	s.record(ctx, entry)
	s.metrics.Submission(string(action.Kind), metrics.ResultOK)

	slog.Info("submission sent",
		"kind", action.Kind,
		"from", from.Hex(),
		"token", action.Token.Hex(),
		"target", action.Target.Hex(),
		"txHash", hash.Hex(),
	)
	return hash, nil
}

func (s *Submitter) record(ctx context.Context, entry models.Submission) {
	if s.recorder == nil {
		return
	}
	// Record even when the request context has ended.
	if _, err := s.recorder.InsertSubmission(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("failed to record submission",
			"kind", entry.Kind,
			"txHash", entry.TxHash,
			"error", err,
		)
	}
}

// RevertReason extracts the Error(string) reason from a node error when it
// carries revert data, and falls back to the error text.
func RevertReason(err error) string {
	var de interface{ ErrorData() interface{} }
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return "execution reverted: " + reason
				}
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		return msg[i:]
	}
	return msg
}
