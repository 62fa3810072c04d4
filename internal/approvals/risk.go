package approvals

import (
	"math/big"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
)

var (
	// MaxUint256 is 2^256-1, the conventional "unlimited" allowance.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	largeApprovalThreshold, _ = new(big.Int).SetString(config.LargeApprovalThreshold, 10)
)

// ClassifyAmount grades a fungible allowance.
func ClassifyAmount(amount *big.Int) models.RiskLevel {
	switch {
	case amount == nil || amount.Sign() <= 0:
		return models.RiskNone
	case amount.Cmp(MaxUint256) >= 0:
		return models.RiskUnlimited
	case amount.Cmp(largeApprovalThreshold) >= 0:
		return models.RiskLarge
	default:
		return models.RiskLimited
	}
}

// Classify derives the risk level of an event. Single-token approvals carry
// no amount and grade as none.
func Classify(e models.ApprovalEvent) models.RiskLevel {
	switch a := e.Approval.(type) {
	case models.FungibleApproval:
		return ClassifyAmount(a.Amount)
	case models.BlanketApproval:
		if a.Approved {
			return models.RiskActive
		}
		return models.RiskRevoked
	default:
		return models.RiskNone
	}
}

// RiskTooltip is the short explanation shown next to the risk indicator.
func RiskTooltip(level models.RiskLevel) string {
	switch level {
	case models.RiskUnlimited:
		return "Unlimited approval"
	case models.RiskLarge:
		return "Large amount"
	case models.RiskLimited:
		return "Limited approval"
	case models.RiskActive:
		return "ApprovalForAll"
	default:
		return "No risk"
	}
}
