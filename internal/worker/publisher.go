package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/recreationcalc/recreationcalc/internal/catalog"
	"github.com/recreationcalc/recreationcalc/internal/resilience"
)

// Publisher publishes worker jobs to a Pub/Sub topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	guard     *resilience.Guard[string]
	logger    zerolog.Logger
	clock     func() time.Time
}

// PublisherConfig holds configuration for the Pub/Sub publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Registry  *resilience.Registry // Optional
	Logger    zerolog.Logger
}

// NewPublisher creates a new Pub/Sub job publisher.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	guardCfg := resilience.DefaultGuardConfig("pubsub")
	guardCfg.Registry = cfg.Registry

	return &Publisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		guard:     resilience.NewGuard[string](guardCfg),
		logger:    cfg.Logger.With().Str("component", "pubsub_publisher").Logger(),
		clock:     time.Now,
	}, nil
}

// Publish sends msg and waits for the server to acknowledge it.
func (p *Publisher) Publish(ctx context.Context, msg JobMessage) error {
	if msg.RequestedAt.IsZero() {
		msg.RequestedAt = p.clock().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding job message: %w", err)
	}

	serverID, err := p.guard.Execute(ctx, func(ctx context.Context) (string, error) {
		return p.publisher.Publish(ctx, &pubsub.Message{
			Data:       data,
			Attributes: map[string]string{"job_type": msg.JobType},
		}).Get(ctx)
	})
	if err != nil {
		return fmt.Errorf("publishing %s job: %w", msg.JobType, err)
	}

	p.logger.Debug().
		Str("job_type", msg.JobType).
		Str("message_id", serverID).
		Msg("job published")
	return nil
}

// PublishCatalogUpdated announces a factor catalog change.
func (p *Publisher) PublishCatalogUpdated(ctx context.Context) error {
	return p.Publish(ctx, JobMessage{JobType: JobTypeCatalogUpdated})
}

// PublishRecalculate requests recalculation of the given routes.
func (p *Publisher) PublishRecalculate(ctx context.Context, routeIDs []string) error {
	return p.Publish(ctx, JobMessage{JobType: JobTypeRecalculate, RouteIDs: routeIDs})
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// InlinePublisher runs published jobs in the current process. It is used
// when Pub/Sub is disabled, for example with the in-memory database.
type InlinePublisher struct {
	jobs    *JobHandler
	logger  zerolog.Logger
	timeout time.Duration
}

// NewInlinePublisher creates a publisher that handles jobs in the background
// of the calling process.
func NewInlinePublisher(jobs *JobHandler, logger zerolog.Logger, timeout time.Duration) *InlinePublisher {
	if timeout <= 0 {
		timeout = DefaultRecalculateConfig().JobTimeout
	}
	return &InlinePublisher{
		jobs:    jobs,
		logger:  logger.With().Str("component", "inline_publisher").Logger(),
		timeout: timeout,
	}
}

// Publish starts the job and returns without waiting for it.
func (p *InlinePublisher) Publish(ctx context.Context, msg JobMessage) error {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)

	go func() {
		defer cancel()
		if _, err := p.jobs.Handle(jobCtx, msg); err != nil {
			p.logger.Error().Err(err).Str("job_type", msg.JobType).Msg("inline job failed")
		}
	}()
	return nil
}

// PublishCatalogUpdated announces a factor catalog change.
func (p *InlinePublisher) PublishCatalogUpdated(ctx context.Context) error {
	return p.Publish(ctx, JobMessage{JobType: JobTypeCatalogUpdated})
}

// Ensure both publishers satisfy the catalog's Publisher interface.
var (
	_ catalog.Publisher = (*Publisher)(nil)
	_ catalog.Publisher = (*InlinePublisher)(nil)
)
