package adapter

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsConn is the NATS connection held by the publisher and the relay
//
//go:generate mockgen -source=nats.go -destination=../mocks/nats.go -package=mocks -mock_names=NatsConn=MockNatsConn,JetStream=MockJetStream,Consumer=MockNatsConsumer,ConsumeContext=MockConsumeContext,Message=MockJetStreamMessage,NatsJetStream=MockNatsJetStream
type NatsConn interface {
	Close()
}

// JetStream is the part of a JetStream context the bridge publishes and consumes through
type JetStream interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) error
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (Consumer, error)
}

// MessageHandler receives the messages of a pull consumer
type MessageHandler func(msg Message)

// Consumer is a durable pull consumer of the bridge stream
type Consumer interface {
	Consume(handler MessageHandler, opts ...jetstream.PullConsumeOpt) (ConsumeContext, error)
	Info(ctx context.Context) (*jetstream.ConsumerInfo, error)
}

// ConsumeContext stops a running Consume
type ConsumeContext interface {
	Stop()
}

// Message is a bridge message delivered by JetStream
type Message interface {
	Data() []byte
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Nak() error
	Term() error
}

// NatsJetStream dials NATS and opens a JetStream context on the connection
type NatsJetStream interface {
	Connect(url string, options ...nats.Option) (NatsConn, JetStream, error)
}

type natsDialer struct{}

// NewNatsJetStream returns a NatsJetStream dialing real servers
func NewNatsJetStream() NatsJetStream {
	return natsDialer{}
}

func (natsDialer) Connect(url string, options ...nats.Option) (NatsConn, JetStream, error) {
	nc, err := nats.Connect(url, options...)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	return nc, &jetStream{js: js}, nil
}

// jetStream narrows jetstream.JetStream, wrapping its consumers
type jetStream struct {
	js jetstream.JetStream
}

func (a *jetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	return a.js.Publish(ctx, subject, data, opts...)
}

func (a *jetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	_, err := a.js.CreateOrUpdateStream(ctx, cfg)
	return err
}

func (a *jetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (Consumer, error) {
	c, err := a.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, err
	}
	return &pullConsumer{consumer: c}, nil
}

type pullConsumer struct {
	consumer jetstream.Consumer
}

func (c *pullConsumer) Consume(handler MessageHandler, opts ...jetstream.PullConsumeOpt) (ConsumeContext, error) {
	return c.consumer.Consume(func(msg jetstream.Msg) {
		handler(msg)
	}, opts...)
}

func (c *pullConsumer) Info(ctx context.Context) (*jetstream.ConsumerInfo, error) {
	return c.consumer.Info(ctx)
}
