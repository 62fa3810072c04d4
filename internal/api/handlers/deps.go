package handlers

import (
	"context"

	"github.com/Fantasim/rektrescue/internal/approvals"
	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/db"
	"github.com/Fantasim/rektrescue/internal/dust"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/protocol"
	"github.com/Fantasim/rektrescue/internal/registry"
	"github.com/Fantasim/rektrescue/internal/revoke"
	"github.com/Fantasim/rektrescue/internal/viewstate"
	"github.com/ethereum/go-ethereum/common"
)

// HeadReader reports the latest block.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ApprovalScanner runs one approval log scan.
type ApprovalScanner interface {
	Scan(ctx context.Context, req approvals.ScanRequest) (*approvals.ScanResult, error)
}

// EventAnnotator renders scanned events for display.
type EventAnnotator interface {
	Annotate(ctx context.Context, chainID uint64, events []models.ApprovalEvent) []approvals.AnnotatedEvent
}

// DustScanner runs one dust balance scan.
type DustScanner interface {
	Scan(ctx context.Context, owner common.Address) (*dust.Result, error)
}

// ProtocolAssessor runs the three protocol risk reads.
type ProtocolAssessor interface {
	Assess(ctx context.Context, req protocol.AssessRequest) models.ProtocolRiskReport
}

// BreakerStates reports the live circuit state per endpoint.
type BreakerStates interface {
	States() map[string]string
}

// Deps holds everything the handlers need. Session is nil when no signing
// key is configured.
type Deps struct {
	Config    *config.Config
	Version   string
	DB        *db.DB
	Registry  *registry.Registry
	Chain     registry.Chain
	Head      HeadReader
	Approvals ApprovalScanner
	Annotator EventAnnotator
	Dust      DustScanner
	Protocols ProtocolAssessor
	Submitter *revoke.Submitter
	Batch     *revoke.Batch
	Session   revoke.WalletSession
	Views     *viewstate.Store
	Breakers  BreakerStates
	Metrics   *metrics.Metrics
}

// sessionAddress returns the connected wallet, or the zero address.
func (d *Deps) sessionAddress() common.Address {
	if d.Session == nil {
		return common.Address{}
	}
	return d.Session.Address()
}

// recordScan appends a scan_log row without failing the request.
func (d *Deps) recordScan(ctx context.Context, entry models.ScanLogEntry) {
	if d.DB == nil {
		return
	}
	if _, err := d.DB.InsertScanLog(context.WithoutCancel(ctx), entry); err != nil {
		logScanLogFailure(entry.Pipeline, err)
	}
}
