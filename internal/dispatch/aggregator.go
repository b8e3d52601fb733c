package dispatch

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

type aggregateStore interface {
	CampaignStatusCounts(ctx context.Context, campaignID string) (store.StatusCounts, error)
	SetCampaignStatus(ctx context.Context, campaignID string, status store.CampaignStatus) error
}

// Reduce derives a campaign's terminal status from its message counts. It
// returns false while any message is still pending or the campaign is empty.
func Reduce(counts store.StatusCounts) (store.CampaignStatus, bool) {
	if counts.Pending > 0 || counts.Total() == 0 {
		return "", false
	}
	if counts.Failed == counts.Total() {
		return store.CampaignFailed, true
	}
	return store.CampaignComplete, true
}

// Aggregator recomputes campaign status from scratch, so overlapping batches
// may run it concurrently for the same campaign.
type Aggregator struct {
	store  aggregateStore
	logger *logging.Logger
}

// NewAggregator creates a campaign aggregator.
func NewAggregator(s aggregateStore, logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{store: s, logger: logger}
}

// Recompute reads every message status of a campaign and writes the derived
// terminal status. It reports whether the campaign is terminal.
func (a *Aggregator) Recompute(ctx context.Context, campaignID string) (store.CampaignStatus, bool, error) {
	counts, err := a.store.CampaignStatusCounts(ctx, campaignID)
	if err != nil {
		return "", false, fmt.Errorf("dispatch: aggregate campaign %s: %w", campaignID, err)
	}
	status, terminal := Reduce(counts)
	if !terminal {
		return "", false, nil
	}
	if err := a.store.SetCampaignStatus(ctx, campaignID, status); err != nil {
		return "", false, fmt.Errorf("dispatch: aggregate campaign %s: %w", campaignID, err)
	}
	a.logger.Info("campaign finished",
		"campaign_id", campaignID,
		"status", string(status),
		"sent", counts.Sent,
		"failed", counts.Failed,
	)
	return status, true, nil
}
