package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/store"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

// Result is the outcome of a delivery
type Result string

const (
	// ResultDelivered means the destination chain accepted the message
	ResultDelivered Result = "delivered"
	// ResultSkipped means the journal already holds a final outcome for the message
	ResultSkipped Result = "skipped"
	// ResultReverted means the destination chain rejected the message for good
	ResultReverted Result = "reverted"
	// ResultRetry means delivery failed for a transient reason
	ResultRetry Result = "retry"
)

// Outcome describes what happened to a message
type Outcome struct {
	Key      string `json:"key"`
	Result   Result `json:"result"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

const defaultRetryMaxElapsed = 30 * time.Second

// permanent reports whether a delivery error will not go away by retrying
func permanent(err error) bool {
	return domain.IsRevert(err) || errors.Is(err, domain.ErrInvalidInput)
}

// process journals the message and delivers it unless it already has a final outcome
func (r *relay) process(ctx context.Context, msg *domain.BridgeMessage) (*Outcome, error) {
	record, err := r.store.SaveBridgeMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	if record.Status != schema.BridgeMessageStatusPending {
		logger.InfoCtx(ctx, "Bridge message already settled",
			zap.String("key", record.MessageKey),
			zap.String("status", string(record.Status)),
		)
		return &Outcome{Key: record.MessageKey, Result: ResultSkipped}, nil
	}

	return r.deliver(ctx, msg), nil
}

// deliver hands the message to the deliverer, retrying transient errors with an
// exponential backoff, and records the outcome in the journal
func (r *relay) deliver(ctx context.Context, msg *domain.BridgeMessage) *Outcome {
	outcome := &Outcome{Key: msg.Key()}

	operation := func() error {
		outcome.Attempts++
		err := r.deliverer.Deliver(ctx, *msg)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = r.config.RetryMaxElapsed
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = defaultRetryMaxElapsed
	}

	notify := func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Delivery failed, retrying",
			zap.String("key", outcome.Key),
			zap.Error(err),
			zap.Int("attempt", outcome.Attempts),
			zap.Duration("next_retry_in", next),
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)

	var status schema.BridgeMessageStatus
	switch {
	case err == nil:
		outcome.Result = ResultDelivered
		status = schema.BridgeMessageStatusDelivered

	case errors.Is(err, domain.ErrReplay):
		// consumed on the destination chain by an earlier delivery whose ack was lost
		logger.WarnCtx(ctx, "Bridge message was already processed", zap.String("key", outcome.Key), zap.Error(err))
		outcome.Result = ResultDelivered
		outcome.Error = err.Error()
		status = schema.BridgeMessageStatusDelivered

	case permanent(err):
		logger.ErrorCtx(ctx, err, zap.String("message", "Bridge message rejected"), zap.String("key", outcome.Key))
		outcome.Result = ResultReverted
		outcome.Error = err.Error()
		status = schema.BridgeMessageStatusFailed

	default:
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to deliver bridge message"), zap.String("key", outcome.Key))
		outcome.Result = ResultRetry
		outcome.Error = err.Error()
		status = schema.BridgeMessageStatusPending
	}

	if err := r.store.MarkBridgeMessage(ctx, outcome.Key, status, outcome.Error); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to record delivery outcome"), zap.String("key", outcome.Key))
	}

	if outcome.Result == ResultDelivered {
		logger.InfoCtx(ctx, "Bridge message delivered", zap.String("key", outcome.Key), zap.Int("attempts", outcome.Attempts))
	}

	return outcome
}

// Redeliver delivers a journaled message again. Failed messages are retried too,
// delivered ones are skipped.
func (r *relay) Redeliver(ctx context.Context, key string) (*Outcome, error) {
	record, err := r.store.GetBridgeMessage(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrBridgeMessageNotFound, key)
	}

	if record.Status == schema.BridgeMessageStatusDelivered {
		return &Outcome{Key: key, Result: ResultSkipped}, nil
	}

	var msg domain.BridgeMessage
	if err := r.json.Unmarshal([]byte(record.Payload), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journaled message: %w", err)
	}

	logger.InfoCtx(ctx, "Redelivering bridge message", zap.String("key", key), zap.String("status", string(record.Status)))
	return r.deliver(ctx, &msg), nil
}

// RedeliverPending redelivers pending messages of the journal concurrently
func (r *relay) RedeliverPending(ctx context.Context, limit int) (int, error) {
	records, err := r.store.ListBridgeMessages(ctx, store.BridgeMessageFilter{
		Status: schema.BridgeMessageStatusPending,
		Limit:  limit,
	})
	if err != nil {
		return 0, err
	}

	var delivered atomic.Int64
	pool := pond.NewPool(r.config.WorkerConcurrency, pond.WithContext(ctx))
	for _, record := range records {
		key := record.MessageKey
		pool.Submit(func() {
			outcome, err := r.Redeliver(ctx, key)
			if err != nil {
				logger.ErrorCtx(ctx, err, zap.String("message", "Failed to redeliver bridge message"), zap.String("key", key))
				return
			}
			if outcome.Result == ResultDelivered {
				delivered.Add(1)
			}
		})
	}
	pool.StopAndWait()

	return int(delivered.Load()), nil
}
