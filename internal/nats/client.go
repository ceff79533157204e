// Package nats publishes pipeline events to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Listings stream settings. Events older than the retention window are dropped;
// the duplicate window lets a retried publish of the same listing collapse into one.
const (
	ListingsStream    = "LISTINGS"
	ListingsSubjects  = "listings.>"
	listingsRetention = 7 * 24 * time.Hour
	duplicateWindow   = 10 * time.Minute
)

// Client wraps nats connection and jetstream context.
type Client struct {
	Conn *nats.Conn
	js   jetstream.JetStream
}

// New connects to natsURL, reconnecting without limit.
func New(_ context.Context, natsURL string) (*Client, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("carfeed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Client{Conn: conn, js: js}, nil
}

// EnsureListingsStream creates or updates the stream that stores listing events.
func (c *Client) EnsureListingsStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        ListingsStream,
		Description: "listings created by channel imports",
		Subjects:    []string{ListingsSubjects},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      listingsRetention,
		Duplicates:  duplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", ListingsStream, err)
	}
	return nil
}

// Publish sends data as json and waits for the stream ack. msgID deduplicates
// within the stream's duplicate window; empty disables deduplication.
func (c *Client) Publish(ctx context.Context, subject, msgID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := c.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains pending acks before closing the connection.
func (c *Client) Close() {
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// IsConnected reports the connection state for health checks.
func (c *Client) IsConnected() bool {
	return c.Conn.IsConnected()
}
