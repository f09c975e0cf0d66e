package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/adapter"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/messaging"
)

// SubjectPrefix is the prefix of every bridge message subject
const SubjectPrefix = "bridge"

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL               string
	StreamName        string
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionName    string
	CreateStream      bool          // create or update the stream on connect
	DuplicateWindow   time.Duration // JetStream deduplication window of the stream
	StreamMaxAge      time.Duration
	StreamReplication int
}

type publisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
	jcs        adapter.JCS
}

// Subject returns the subject messages of a direction are published on
func Subject(direction domain.Direction) string {
	return fmt.Sprintf("%s.%s.message", SubjectPrefix, direction)
}

// StreamConfig returns the stream every bridge subject is stored in
func StreamConfig(cfg Config) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Duplicates: cfg.DuplicateWindow,
		MaxAge:     cfg.StreamMaxAge,
		Replicas:   cfg.StreamReplication,
	}
}

// NewPublisher creates a new NATS JetStream publisher
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON, jcsAdapter adapter.JCS) (messaging.Publisher, error) {
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

	if cfg.CreateStream {
		if err := js.CreateOrUpdateStream(ctx, StreamConfig(cfg)); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
		}
		logger.InfoCtx(ctx, "Stream ready", zap.String("stream", cfg.StreamName))
	}

	return &publisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
		jcs:        jcsAdapter,
	}, nil
}

// PublishMessage publishes a bridge message to NATS JetStream. The message is sent as
// canonical JSON and its hash is the JetStream message id, so republishing the same
// message within the duplicate window is dropped by the server.
func (p *publisher) PublishMessage(ctx context.Context, msg *domain.BridgeMessage) error {
	logger.DebugCtx(ctx, "Publishing bridge message", zap.String("key", msg.Key()))

	data, err := p.json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	canonical, err := p.jcs.Transform(data)
	if err != nil {
		return fmt.Errorf("failed to canonicalize message: %w", err)
	}

	msgID := crypto.Keccak256Hash(canonical).Hex()
	ack, err := p.js.Publish(ctx, Subject(msg.Direction), canonical, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if ack != nil && ack.Duplicate {
		logger.DebugCtx(ctx, "Duplicate bridge message dropped", zap.String("key", msg.Key()), zap.String("msgID", msgID))
	}

	return nil
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
