// Package publisher pushes detected signals onto Redis streams for the
// alerting and execution collaborators.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/favron1/linescout/pkg/models"
)

// StreamPublisher publishes signal opportunities to Redis streams.
type StreamPublisher struct {
	client *redis.Client
}

// NewStreamPublisher creates a new stream publisher.
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{
		client: client,
	}
}

// PublishSignal publishes a single-leg signal to the sport-specific stream.
func (p *StreamPublisher) PublishSignal(ctx context.Context, sig *models.SignalOpportunity) error {
	streamKey := fmt.Sprintf("signals.detected.%s", sig.SportKey)

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshaling signal: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data":      string(data),
			"event_key": sig.EventKey,
			"tier":      string(sig.Tier),
			"urgency":   string(sig.Urgency),
		},
	}).Err()
}

// PublishCorrelated publishes a multi-leg opportunity.
func (p *StreamPublisher) PublishCorrelated(ctx context.Context, opp *models.CorrelatedOpportunity) error {
	data, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("marshaling correlated opportunity: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "signals.correlated",
		Values: map[string]interface{}{
			"data":       string(data),
			"entity_key": opp.EntityKey,
			"legs":       len(opp.Legs),
		},
	}).Err()
}
