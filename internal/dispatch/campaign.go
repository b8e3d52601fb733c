package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-messaging/internal/observability/metrics"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

// JobCampaign names the campaign dispatch job.
const JobCampaign = "campaign"

// DefaultBatchSize matches the gateway throughput contract.
const DefaultBatchSize = 6

// CampaignStore is the data-store contract the campaign dispatcher needs.
type CampaignStore interface {
	PendingMessages(ctx context.Context, limit int) ([]store.OutboundMessage, error)
	MarkMessageSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkMessageFailed(ctx context.Context, id, reason string) error
	aggregateStore
}

// CampaignDispatcher sends one bounded batch of pending campaign messages per
// invocation and then aggregates every campaign the batch touched.
type CampaignDispatcher struct {
	store      CampaignStore
	engine     *Engine
	aggregator *Aggregator
	batchSize  int
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewCampaignDispatcher creates a campaign dispatcher.
func NewCampaignDispatcher(s CampaignStore, engine *Engine, logger *logging.Logger) *CampaignDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &CampaignDispatcher{
		store:      s,
		engine:     engine,
		aggregator: NewAggregator(s, logger),
		batchSize:  DefaultBatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

func (d *CampaignDispatcher) WithBatchSize(n int) *CampaignDispatcher {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

func (d *CampaignDispatcher) WithMetrics(m *metrics.MessagingMetrics) *CampaignDispatcher {
	d.metrics = m
	return d
}

// Run dispatches a single batch. Only a failure to load the batch is returned
// as an error; per-message failures are reported in the summary.
func (d *CampaignDispatcher) Run(ctx context.Context) (Summary, error) {
	summary := NewSummary(JobCampaign)
	summary.Gateway = d.engine.GatewayName()
	logger := d.logger.With("job", JobCampaign, "gateway", summary.Gateway)

	msgs, err := d.store.PendingMessages(ctx, d.batchSize)
	if err != nil {
		return summary, err
	}
	if len(msgs) == 0 {
		return summary, nil
	}

	var touched []string
	seen := make(map[string]bool)
	for _, msg := range msgs {
		summary.Processed++
		if !seen[msg.CampaignID] {
			seen[msg.CampaignID] = true
			touched = append(touched, msg.CampaignID)
		}
		d.sendMessage(ctx, logger, msg, &summary)
	}

	aggCtx, cancel := persistContext(ctx)
	defer cancel()
	for _, campaignID := range touched {
		if _, _, err := d.aggregator.Recompute(aggCtx, campaignID); err != nil {
			logger.Error("campaign aggregation failed", "campaign_id", campaignID, "error", err)
			summary.AddError("campaign %s: %v", campaignID, err)
		}
	}

	logger.Info("campaign batch dispatched",
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"campaigns", len(touched),
	)
	return summary, nil
}

func (d *CampaignDispatcher) sendMessage(ctx context.Context, logger *logging.Logger, msg store.OutboundMessage, summary *Summary) {
	res, sendErr := d.engine.SendOne(ctx, msg.Phone, msg.Body)

	pctx, cancel := persistContext(ctx)
	defer cancel()

	if sendErr != nil {
		summary.Failed++
		summary.AddError("message %s: %v", msg.ID, sendErr)
		d.metrics.ObserveDispatch(JobCampaign, "failed", d.engine.GatewayName())
		logger.Warn("campaign message failed", "message_id", msg.ID, "campaign_id", msg.CampaignID, "error", sendErr)
		err := d.store.MarkMessageFailed(pctx, msg.ID, sendErr.Error())
		switch {
		case errors.Is(err, store.ErrNotPending):
			logger.Warn("campaign message was no longer pending when marking failure",
				"message_id", msg.ID,
				"campaign_id", msg.CampaignID,
				"possible_double_send", true,
			)
		case err != nil:
			logger.Error("failed to persist message failure",
				"message_id", msg.ID,
				"error", err,
				"send_error", sendErr,
			)
		}
		return
	}

	summary.Sent++
	outcome := "sent"
	if res.Simulated {
		outcome = "simulated"
	}
	d.metrics.ObserveDispatch(JobCampaign, outcome, res.Gateway)
	err := d.store.MarkMessageSent(pctx, msg.ID, res.MessageID, d.now().UTC())
	switch {
	case errors.Is(err, store.ErrNotPending):
		// Another run already recorded this message, so the patient may
		// have received it twice.
		logger.Warn("campaign message was no longer pending when marking sent",
			"message_id", msg.ID,
			"campaign_id", msg.CampaignID,
			"provider_message_id", res.MessageID,
			"possible_double_send", true,
		)
	case err != nil:
		logger.Error("message sent but not recorded",
			"message_id", msg.ID,
			"provider_message_id", res.MessageID,
			"error", err,
			"at_least_once_risk", true,
		)
		summary.AddError("message %s: sent as %s but not recorded: %v", msg.ID, res.MessageID, err)
	}
}
