// Package queue is the durable work-queue boundary. Subscriber runs a
// fetch/dispatch/ack loop against a JetStream work-queue stream; Publisher
// enqueues one job onto it. Stream and consumer setup follows the original
// prototype's shape: ensure the stream exists with work-queue retention,
// tear down and recreate it if an existing stream's subjects or retention
// policy no longer match (JetStream cannot change retention in place),
// then attach a durable pull consumer.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"

	"github.com/cognixio/chunker/engine/dispatch"
	"github.com/cognixio/chunker/engine/extract"
)

// Defaults match the work-queue's redelivery contract: an hour to process
// one message before it's redelivered, three deliveries before it's
// considered dead.
const (
	DefaultDurableName = "durable_chunkdata"
	DefaultAckWait     = time.Hour
	DefaultMaxDeliver  = 3
)

// Config names the stream, subject and durable consumer a Subscriber or
// Publisher binds to.
type Config struct {
	StreamName  string
	Subject     string
	DurableName string
	AckWait     time.Duration
	MaxDeliver  int
}

func (c Config) withDefaults() Config {
	if c.DurableName == "" {
		c.DurableName = DefaultDurableName
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	return c
}

// headerCarrier adapts a nats.Header for OTel trace propagation across the
// JetStream boundary.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string {
	if c == nil {
		return ""
	}
	vs := c[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (c headerCarrier) Set(key, val string) {
	c[key] = []string{val}
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// ensureStream creates cfg.StreamName if it doesn't exist, or recreates it
// if its subjects or retention policy have drifted from the work-queue
// shape this package requires.
func ensureStream(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.Stream, error) {
	want := jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return js.CreateStream(ctx, want)
	}
	if err != nil {
		return nil, fmt.Errorf("queue: look up stream %s: %w", cfg.StreamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: stream info %s: %w", cfg.StreamName, err)
	}
	if info.Config.Retention == want.Retention && equalSubjects(info.Config.Subjects, want.Subjects) {
		return stream, nil
	}

	if err := js.DeleteStream(ctx, cfg.StreamName); err != nil {
		return nil, fmt.Errorf("queue: delete mismatched stream %s: %w", cfg.StreamName, err)
	}
	return js.CreateStream(ctx, want)
}

func equalSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ensureConsumer(ctx context.Context, stream jetstream.Stream, cfg Config) (jetstream.Consumer, error) {
	return stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.DurableName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
}

// Handler processes one job and reports its outcome; it never acks, naks
// or terms the underlying message, that's Subscriber.Run's job based on
// the returned error.
type Handler func(ctx context.Context, job extract.Job) error

// Subscriber runs the fetch/dispatch/ack loop against a durable JetStream
// pull consumer.
type Subscriber struct {
	cfg  Config
	cons jetstream.Consumer
	log  *slog.Logger
}

// NewSubscriber connects to the stream and durable consumer named by cfg,
// creating either if absent and recreating the stream if its shape has
// drifted.
func NewSubscriber(ctx context.Context, nc *nats.Conn, cfg Config, log *slog.Logger) (*Subscriber, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("queue: jetstream context: %w", err)
	}
	stream, err := ensureStream(ctx, js, cfg)
	if err != nil {
		return nil, err
	}
	cons, err := ensureConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("queue: ensure consumer: %w", err)
	}
	return &Subscriber{cfg: cfg, cons: cons, log: log}, nil
}

// Run fetches one message at a time and dispatches it to handler, blocking
// until ctx is canceled. A handler error wrapping dispatch.ErrBadJob acks
// the message (poison, dropped); any other handler error naks it for
// redelivery; success acks it.
func (s *Subscriber) Run(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		batch, err := s.cons.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.log.Error("queue: fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range batch.Messages() {
			s.dispatch(ctx, msg, handler)
		}
		if berr := batch.Error(); berr != nil && !errors.Is(berr, nats.ErrTimeout) && !errors.Is(berr, context.DeadlineExceeded) {
			s.log.Warn("queue: batch fetch error", "error", berr)
		}
	}
}

// ackDecision is what Run does to the underlying message once handler has
// run, split out from dispatch so the classification is unit-testable
// without a real jetstream.Msg.
type ackDecision int

const (
	ackMessage ackDecision = iota
	nakMessage
)

// decide classifies a handler error: nil and dispatch.ErrBadJob both ack
// (success, and poison respectively); everything else naks for
// redelivery.
func decide(err error) ackDecision {
	if err == nil || errors.Is(err, dispatch.ErrBadJob) {
		return ackMessage
	}
	return nakMessage
}

func (s *Subscriber) dispatch(ctx context.Context, msg jetstream.Msg, handler Handler) {
	var job extract.Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		s.log.Error("queue: malformed job payload, acking as poison", "error", err)
		if terr := msg.Ack(); terr != nil {
			s.log.Error("queue: ack failed", "error", terr)
		}
		return
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers()))
	procCtx, cancel := context.WithDeadline(msgCtx, time.Now().Add(s.cfg.AckWait))
	defer cancel()

	err := handler(procCtx, job)
	switch decide(err) {
	case ackMessage:
		if err != nil {
			s.log.Error("queue: poison message, acking", "error", err, "document_id", job.DocumentID)
		}
		if aerr := msg.Ack(); aerr != nil {
			s.log.Error("queue: ack failed", "error", aerr, "document_id", job.DocumentID)
		}
	case nakMessage:
		s.log.Warn("queue: handler failed, naking for redelivery", "error", err, "document_id", job.DocumentID)
		if nerr := msg.Nak(); nerr != nil {
			s.log.Error("queue: nak failed", "error", nerr, "document_id", job.DocumentID)
		}
	}
}

// Publisher mirrors Subscriber's stream-ensure logic and publishes one job
// at a time.
type Publisher struct {
	cfg Config
	js  jetstream.JetStream
}

// NewPublisher ensures cfg's stream exists and returns a Publisher bound
// to it.
func NewPublisher(ctx context.Context, nc *nats.Conn, cfg Config) (*Publisher, error) {
	cfg = cfg.withDefaults()
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("queue: jetstream context: %w", err)
	}
	if _, err := ensureStream(ctx, js, cfg); err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, js: js}, nil
}

// Publish enqueues job, propagating ctx's trace context in message
// headers. No local retry: NoResponders/timeout surface to the caller.
func (p *Publisher) Publish(ctx context.Context, job extract.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	msg := &nats.Msg{Subject: p.cfg.Subject, Data: data, Header: nats.Header{}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}
