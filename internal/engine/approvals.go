package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfold/predictbot/internal/domain"
)

// approvalGate memoizes on-chain approvals per venue. Approvals are sticky:
// once a venue is confirmed it is never re-checked for the process lifetime.
// Failures are not memoized and retry on the next order.
type approvalGate struct {
	approver domain.Approver

	mu      sync.Mutex
	granted map[string]bool
}

func newApprovalGate(approver domain.Approver) *approvalGate {
	return &approvalGate{
		approver: approver,
		granted:  make(map[string]bool),
	}
}

// ensure confirms approvals for venue, calling through at most once per
// venue. A nil approver means approvals are managed out of band.
func (g *approvalGate) ensure(ctx context.Context, venue string) error {
	if g.approver == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.granted[venue] {
		return nil
	}
	if err := g.approver.EnsureApprovals(ctx, venue); err != nil {
		return fmt.Errorf("engine: approvals for %s: %w", venue, err)
	}
	g.granted[venue] = true
	return nil
}
