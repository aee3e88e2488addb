package cron

import (
	"context"
	"errors"
)

type snapshotPublisher interface {
	Publish(ctx context.Context) error
}

// MetafieldResyncJob republishes the bundle snapshot on a schedule so the
// storefront metafield recovers from publish failures that happened during
// admin mutations.
type MetafieldResyncJob struct {
	publisher snapshotPublisher
}

// NewMetafieldResyncJob builds the resync job.
func NewMetafieldResyncJob(publisher snapshotPublisher) (*MetafieldResyncJob, error) {
	if publisher == nil {
		return nil, errors.New("snapshot publisher required")
	}
	return &MetafieldResyncJob{publisher: publisher}, nil
}

// Name implements Job.
func (j *MetafieldResyncJob) Name() string { return "metafield_resync" }

// Run implements Job.
func (j *MetafieldResyncJob) Run(ctx context.Context) error {
	return j.publisher.Publish(ctx)
}
