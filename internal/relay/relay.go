package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/store"
)

// Config holds the configuration for the relay
type Config struct {
	URL               string
	StreamName        string
	ConsumerName      string
	FilterSubject     string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionName    string
	AckWaitTimeout    time.Duration
	MaxDeliver        int
	WorkerConcurrency int
	RetryMaxElapsed   time.Duration // total time spent retrying a transport error before the message is NAKed
}

// Deliverer submits a bridge message to the chain it is addressed to
//
//go:generate mockgen -source=relay.go -destination=../mocks/relay.go -package=mocks -mock_names=Deliverer=MockDeliverer,Relay=MockRelay
type Deliverer interface {
	Deliver(ctx context.Context, msg domain.BridgeMessage) error
}

// Relay consumes bridge messages from JetStream and delivers them
type Relay interface {
	// Run consumes messages until the context is done
	Run(ctx context.Context) error
	// Redeliver delivers a journaled message again, bypassing JetStream
	Redeliver(ctx context.Context, key string) (*Outcome, error)
	// RedeliverPending redelivers every pending message of the journal and returns how many were delivered
	RedeliverPending(ctx context.Context, limit int) (int, error)
	// Close closes the relay and cleans up resources
	Close()
}

type relay struct {
	nc        adapter.NatsConn
	js        adapter.JetStream
	deliverer Deliverer
	store     store.Store
	json      adapter.JSON
	config    Config
}

// NewRelay creates a new relay
func NewRelay(
	cfg Config,
	natsJS adapter.NatsJetStream,
	deliverer Deliverer,
	st store.Store,
	jsonAdapter adapter.JSON,
) (Relay, error) {
	if cfg.FilterSubject == "" {
		cfg.FilterSubject = "bridge.*.message"
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &relay{
		nc:        nc,
		js:        js,
		deliverer: deliverer,
		store:     st,
		json:      jsonAdapter,
		config:    cfg,
	}, nil
}

// Run starts consuming bridge messages
func (r *relay) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Starting relay", zap.String("stream", r.config.StreamName), zap.String("consumer", r.config.ConsumerName))

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       r.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       r.config.AckWaitTimeout,
		MaxDeliver:    r.config.MaxDeliver,
		FilterSubject: r.config.FilterSubject,
	}

	consumer, err := r.js.CreateOrUpdateConsumer(ctx, r.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.InfoCtx(ctx, "Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	pool := pond.NewPool(r.config.WorkerConcurrency)
	defer func() {
		pool.StopAndWait()
		logger.InfoCtx(ctx, "Relay worker pool stopped",
			zap.Uint64("submitted", pool.SubmittedTasks()),
			zap.Uint64("completed", pool.CompletedTasks()))
	}()

	sub, err := consumer.Consume(func(msg adapter.Message) {
		pool.Submit(func() {
			r.handleMessage(ctx, msg)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.InfoCtx(ctx, "Started consuming messages")

	<-ctx.Done()
	logger.InfoCtx(ctx, "Shutting down relay")
	return ctx.Err()
}

// handleMessage delivers a single NATS message and settles it according to the outcome
func (r *relay) handleMessage(ctx context.Context, msg adapter.Message) {
	var deliveryCount uint64
	if metadata, err := msg.Metadata(); err == nil && metadata != nil {
		deliveryCount = metadata.NumDelivered
	}

	var bridgeMsg domain.BridgeMessage
	if err := r.json.Unmarshal(msg.Data(), &bridgeMsg); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to unmarshal bridge message"))
		terminate(ctx, msg)
		return
	}

	if !bridgeMsg.Valid() {
		logger.WarnCtx(ctx, "Dropping invalid bridge message", zap.String("key", bridgeMsg.Key()))
		terminate(ctx, msg)
		return
	}

	logger.InfoCtx(ctx, "Received bridge message",
		zap.String("key", bridgeMsg.Key()),
		zap.String("txHash", bridgeMsg.TxHash.Hex()),
		zap.Uint64("deliveryCount", deliveryCount),
	)

	outcome, err := r.process(ctx, &bridgeMsg)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to journal bridge message"), zap.String("key", bridgeMsg.Key()))
		nak(ctx, msg)
		return
	}

	switch outcome.Result {
	case ResultDelivered, ResultSkipped:
		if err := msg.Ack(); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Failed to ACK message"))
		}
	case ResultReverted:
		terminate(ctx, msg)
	default:
		nak(ctx, msg)
	}
}

func terminate(ctx context.Context, msg adapter.Message) {
	if err := msg.Term(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to terminate message"))
	}
}

func nak(ctx context.Context, msg adapter.Message) {
	if err := msg.Nak(); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to NAK message"))
	}
}

// Close closes the relay and cleans up resources
func (r *relay) Close() {
	if r.nc == nil {
		return
	}

	r.nc.Close()
}
