package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/carfeed/internal/ingest"
)

// MockNATSClient mocks the nats client operations we need
type MockNATSClient struct {
	PublishedSubject string
	PublishedMsgID   string
	PublishedData    any
	PublishError     error
}

func (m *MockNATSClient) Publish(_ context.Context, subject, msgID string, data any) error {
	m.PublishedSubject = subject
	m.PublishedMsgID = msgID
	m.PublishedData = data
	return m.PublishError
}

func TestNATSPublisher_PublishListingCreated(t *testing.T) {
	mock := &MockNATSClient{}
	pub := NewNATSPublisher(mock)

	event := ingest.ListingCreatedEvent{
		ListingID: uuid.New(),
		RunID:     uuid.New(),
		Channel:   "akibaautovl",
		MessageID: 4512,
		Title:     "Toyota Camry",
		SourceURL: "https://t.me/akibaautovl/4512",
		CreatedAt: time.Now(),
	}

	require.NoError(t, pub.PublishListingCreated(context.Background(), event))

	assert.Equal(t, "listings.new", mock.PublishedSubject)
	assert.Equal(t, "listing-"+event.ListingID.String(), mock.PublishedMsgID)
	assert.Equal(t, event, mock.PublishedData)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("nats: no responders available for request")}
	pub := NewNATSPublisher(mock)

	err := pub.PublishListingCreated(context.Background(), ingest.ListingCreatedEvent{ListingID: uuid.New()})

	assert.ErrorIs(t, err, mock.PublishError)
}
