// Package publisher emits pipeline events to NATS.
package publisher

import (
	"context"
	"fmt"

	"github.com/blockedby/carfeed/internal/ingest"
)

// SubjectListingNew carries ingest.ListingCreatedEvent payloads.
const SubjectListingNew = "listings.new"

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject, msgID string, data any) error
}

// NATSPublisher implements ingest.EventPublisher
type NATSPublisher struct {
	js NATSClient
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(client NATSClient) *NATSPublisher {
	return &NATSPublisher{js: client}
}

// PublishListingCreated publishes a new listing event.
// The listing id is the message id, so a repeated publish is stored once.
func (p *NATSPublisher) PublishListingCreated(ctx context.Context, event ingest.ListingCreatedEvent) error {
	msgID := "listing-" + event.ListingID.String()
	if err := p.js.Publish(ctx, SubjectListingNew, msgID, event); err != nil {
		return fmt.Errorf("publish listing %s: %w", event.ListingID, err)
	}
	return nil
}
