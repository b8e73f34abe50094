// Package worker recalculates stored route capacity in the background,
// driven by Pub/Sub job messages.
package worker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job types carried in JobMessage.JobType.
const (
	// JobTypeRecalculate recalculates the listed routes, or every route
	// when no IDs are given.
	JobTypeRecalculate = "recalculate_capacity"

	// JobTypeCatalogUpdated is published after the factor catalog changes;
	// every stored route is recalculated.
	JobTypeCatalogUpdated = "catalog_updated"
)

// JobMessage is the Pub/Sub payload for worker jobs.
type JobMessage struct {
	JobType     string    `json:"job_type"`
	RouteIDs    []string  `json:"route_ids,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// DecodeJobMessage parses a job message payload.
func DecodeJobMessage(data []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("decoding job message: %w", err)
	}
	if msg.JobType == "" {
		return JobMessage{}, fmt.Errorf("decoding job message: job_type is required")
	}
	return msg, nil
}

// RecalculateConfig holds configuration for the recalculation job.
type RecalculateConfig struct {
	// Concurrency is the number of routes recalculated at once.
	// Default: 4
	Concurrency int

	// JobTimeout bounds a whole run.
	// Default: 10 minutes
	JobTimeout time.Duration

	// RouteTimeout bounds the recalculation of a single route.
	// Default: 30 seconds
	RouteTimeout time.Duration

	// BatchSize is the number of route IDs fetched per page when
	// recalculating every route.
	// Default: 500
	BatchSize int
}

// DefaultRecalculateConfig returns the default recalculation configuration.
func DefaultRecalculateConfig() RecalculateConfig {
	return RecalculateConfig{
		Concurrency:  4,
		JobTimeout:   10 * time.Minute,
		RouteTimeout: 30 * time.Second,
		BatchSize:    500,
	}
}

func (c RecalculateConfig) withDefaults() RecalculateConfig {
	def := DefaultRecalculateConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = def.RouteTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	return c
}
