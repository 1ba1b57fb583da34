// Package consumer drains bookmaker quotes and venue listings from Redis
// Streams. The scanner reads in batches at each tick rather than running a
// blocking loop, so the drain methods return whatever is pending and never
// block longer than one short poll.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/favron1/linescout/pkg/models"
)

const (
	quoteStreamPrefix = "quotes.raw."
	marketStream      = "markets.candidate"
)

// QuoteStreamKey returns the ingest stream for a sport.
func QuoteStreamKey(sportKey string) string {
	return quoteStreamPrefix + sportKey
}

// StreamConsumer reads quote and market streams via a consumer group.
type StreamConsumer struct {
	client     *redis.Client
	consumerID string
	groupName  string
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(client *redis.Client, consumerID, groupName string) *StreamConsumer {
	return &StreamConsumer{
		client:     client,
		consumerID: consumerID,
		groupName:  groupName,
	}
}

// EnsureGroups creates the consumer group on every stream the scanner
// reads. Safe to call repeatedly.
func (c *StreamConsumer) EnsureGroups(ctx context.Context, sportKeys []string) error {
	streams := []string{marketStream}
	for _, sport := range sportKeys {
		streams = append(streams, QuoteStreamKey(sport))
	}

	for _, stream := range streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.groupName, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}

	return nil
}

// DrainQuotes reads up to max pending quotes for one sport, acknowledging
// each message it could parse. Malformed messages are acknowledged and
// counted so they are not redelivered forever.
func (c *StreamConsumer) DrainQuotes(ctx context.Context, sportKey string, max int64) ([]models.BookmakerQuote, int, error) {
	stream := QuoteStreamKey(sportKey)

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerID,
		Streams:  []string{stream, ">"},
		Count:    max,
		Block:    100 * time.Millisecond,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("error reading from %s: %w", stream, err)
	}

	var quotes []models.BookmakerQuote
	malformed := 0

	for _, str := range streams {
		for _, msg := range str.Messages {
			var quote models.BookmakerQuote
			if err := parsePayload(msg, &quote); err != nil {
				malformed++
			} else {
				quotes = append(quotes, quote)
			}
			if err := c.client.XAck(ctx, stream, c.groupName, msg.ID).Err(); err != nil {
				return quotes, malformed, fmt.Errorf("failed to ack %s: %w", msg.ID, err)
			}
		}
	}

	return quotes, malformed, nil
}

// DrainMarkets reads up to max pending venue listings.
func (c *StreamConsumer) DrainMarkets(ctx context.Context, max int64) ([]models.CandidateMarket, int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.groupName,
		Consumer: c.consumerID,
		Streams:  []string{marketStream, ">"},
		Count:    max,
		Block:    100 * time.Millisecond,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("error reading from %s: %w", marketStream, err)
	}

	var markets []models.CandidateMarket
	malformed := 0

	for _, str := range streams {
		for _, msg := range str.Messages {
			var market models.CandidateMarket
			if err := parsePayload(msg, &market); err != nil {
				malformed++
			} else {
				markets = append(markets, market)
			}
			if err := c.client.XAck(ctx, marketStream, c.groupName, msg.ID).Err(); err != nil {
				return markets, malformed, fmt.Errorf("failed to ack %s: %w", msg.ID, err)
			}
		}
	}

	return markets, malformed, nil
}

// parsePayload extracts the JSON "data" field publishers write.
func parsePayload(msg redis.XMessage, out any) error {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing 'data' field in message %s", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to parse message %s: %w", msg.ID, err)
	}
	return nil
}
