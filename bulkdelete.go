package main

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ===========================
// Bulk Message Deletion
// ===========================

// Discord refuses bulk deletion of messages older than 14 days; those
// go through the single-delete endpoint one by one.
const (
	bulkDeleteMaxAge     = 14 * 24 * time.Hour
	bulkDeleteBatchSize  = 100
	bulkDeleteRatePerSec = 2
	bulkDeleteBurst      = 4
)

// messageDeleter is the REST surface the executor needs. Tests provide
// a fake; production uses restMessageDeleter.
type messageDeleter interface {
	BulkDelete(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error
	DeleteSingle(ctx context.Context, channelID, messageID snowflake.ID) error
}

type restMessageDeleter struct {
	client *bot.Client
	reason string
}

func (d *restMessageDeleter) BulkDelete(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error {
	return d.client.Rest.BulkDeleteMessages(channelID, messageIDs, rest.WithCtx(ctx), rest.WithReason(d.reason))
}

func (d *restMessageDeleter) DeleteSingle(ctx context.Context, channelID, messageID snowflake.ID) error {
	return d.client.Rest.DeleteMessage(channelID, messageID, rest.WithCtx(ctx), rest.WithReason(d.reason))
}

// BulkDeleteResult counts the outcome of one executor run.
type BulkDeleteResult struct {
	Deleted int
	Failed  int
}

// BulkExecutor deletes batches of messages without tripping Discord's
// rate limits. One limiter token is one REST call, bulk or single.
type BulkExecutor struct {
	deleter messageDeleter
	limiter *rate.Limiter
	now     func() time.Time
}

func NewBulkExecutor(deleter messageDeleter) *BulkExecutor {
	return &BulkExecutor{
		deleter: deleter,
		limiter: rate.NewLimiter(rate.Limit(bulkDeleteRatePerSec), bulkDeleteBurst),
		now:     time.Now,
	}
}

// DeleteMessages removes the given messages from a channel. Recent
// messages go through the bulk endpoint in batches; messages past the
// bulk age limit are deleted individually. The context cancels the
// remainder of the run; already-deleted messages stay counted.
func (e *BulkExecutor) DeleteMessages(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) BulkDeleteResult {
	recent, old := partitionByAge(messageIDs, e.now().Add(-bulkDeleteMaxAge))

	var result BulkDeleteResult

	// Bulk batches
	for start := 0; start < len(recent); start += bulkDeleteBatchSize {
		end := min(start+bulkDeleteBatchSize, len(recent))
		batch := recent[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			result.Failed += len(recent) - start + len(old)
			return result
		}

		// The bulk endpoint rejects single-message batches
		if len(batch) == 1 {
			old = append(old, batch[0])
			continue
		}

		if err := e.deleter.BulkDelete(ctx, channelID, batch); err != nil {
			LogCleaner("Bulk delete of %d message(s) failed: %v", len(batch), err)
			result.Failed += len(batch)
			continue
		}
		result.Deleted += len(batch)
	}

	// Singles
	for i, id := range old {
		if err := e.limiter.Wait(ctx); err != nil {
			result.Failed += len(old) - i
			return result
		}

		if err := e.deleter.DeleteSingle(ctx, channelID, id); err != nil {
			LogCleaner("Delete of message %s failed: %v", id, err)
			result.Failed++
			continue
		}
		result.Deleted++
	}

	return result
}

// partitionByAge splits IDs into those created after cutoff and those
// created at or before it. Snowflakes carry their creation time.
func partitionByAge(messageIDs []snowflake.ID, cutoff time.Time) (recent, old []snowflake.ID) {
	for _, id := range messageIDs {
		if id.Time().After(cutoff) {
			recent = append(recent, id)
		} else {
			old = append(old, id)
		}
	}
	return recent, old
}
