package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A recalculation run already fans out internally.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger.With().Str("component", "pubsub_handler").Logger(),
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if ack := h.process(ctx, msg.Data, logger); ack {
		msg.Ack()
		return
	}
	msg.Nack()
}

// process runs the job in data and reports whether the message should be
// acknowledged. Malformed and unknown messages are acknowledged so they
// are not redelivered forever.
func (h *PubSubHandler) process(ctx context.Context, data []byte, logger zerolog.Logger) bool {
	startTime := time.Now()

	jobMsg, err := DecodeJobMessage(data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping malformed message")
		return true
	}

	result, err := h.jobs.Handle(ctx, jobMsg)
	if errors.Is(err, ErrUnknownJobType) {
		logger.Warn().Str("job_type", jobMsg.JobType).Msg("unknown job type")
		return true
	}
	if err != nil {
		logger.Error().Err(err).Str("job_type", jobMsg.JobType).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", jobMsg.JobType).
		Int("routes", result.TotalRoutes).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}
