// Package telegram provides Telegram MTProto client wrapper.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/blockedby/carfeed/internal/logger"
)

// maxPageSize is the telegram limit for one history request.
const maxPageSize = 100

// Client wraps gotgproto client and provides high-level telegram operations.
// It uses the Manager to access the underlying protocol client.
type Client struct {
	manager      *Manager
	rateLimiter  *RateLimiter
	log          *logger.Logger
	pageSize     int
	fetchTimeout time.Duration
}

// NewClient creates a new telegram client wrapper using the Manager.
// Page size, request timeout and rate come from the manager's config.
func NewClient(manager *Manager) *Client {
	c := &Client{
		manager:      manager,
		rateLimiter:  DefaultRateLimiter(),
		log:          logger.Get(),
		pageSize:     maxPageSize,
		fetchTimeout: 30 * time.Second,
	}
	if cfg := manager.cfg; cfg != nil {
		if cfg.TGRateRPS > 0 {
			c.rateLimiter = NewRateLimiter(cfg.TGRateRPS, 1)
		}
		if cfg.BatchSize > 0 && cfg.BatchSize < maxPageSize {
			c.pageSize = cfg.BatchSize
		}
		if cfg.FetchTimeout > 0 {
			c.fetchTimeout = cfg.FetchTimeout
		}
	}
	return c
}

// Close stops the client via the manager.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// GetStatus returns the current status of the telegram client.
func (c *Client) GetStatus() Status {
	return c.manager.GetStatus()
}

// getProto returns the current protocol client if available.
func (c *Client) getProto() (*gotgproto.Client, error) {
	proto := c.manager.GetClient()
	if proto == nil {
		return nil, ErrNotAuthorized
	}
	return proto, nil
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	proto, err := c.getProto()
	if err != nil {
		return nil, err
	}
	return proto.API(), nil
}

// wait blocks on the rate limiter.
func (c *Client) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.log.Error().Err(err).Msg("telegram: rate limiter wait failed")
		return err
	}
	return nil
}

// rpcError feeds a FLOOD_WAIT into the rate limiter and classifies err.
// A rejected session is revoked on the manager.
func (c *Client) rpcError(err error) error {
	if wait, ok := floodWait(err); ok {
		c.log.Warn().Dur("wait", wait).Msg("telegram: FLOOD_WAIT detected, updating rate limiter")
		c.rateLimiter.SetFloodWait(wait)
	}

	err = classify(err)
	if errors.Is(err, ErrNotAuthorized) {
		c.manager.Revoke(err)
	}
	return err
}

// ResolveChannel resolves channel username to Channel info
// username can be with or without @ prefix
func (c *Client) ResolveChannel(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("resolve channel: %w", ErrChannelNotFound)
	}

	api, err := c.API()
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.log.Info().Str("username", username).Msg("telegram: resolving channel username")
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.log.Error().Err(err).Str("username", username).Msg("telegram: failed to resolve username")
		return nil, fmt.Errorf("resolve username %s: %w", username, c.rpcError(err))
	}

	return channelFromChats(username, resolved.Chats)
}

func channelFromChats(username string, chats []tg.ChatClass) (*Channel, error) {
	if len(chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
	}

	ch, ok := chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, username)
	}

	return &Channel{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   username,
		Title:      ch.Title,
	}, nil
}

// FetchAfter returns messages with id greater than minID in ascending id order.
// limit caps the number of messages, 0 means everything newer than minID.
// Any failed page fails the whole fetch.
func (c *Client) FetchAfter(ctx context.Context, channel *Channel, minID int64, limit int) ([]Message, error) {
	api, err := c.API()
	if err != nil {
		return nil, err
	}

	peer := &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
	fetch := func(ctx context.Context, cursor int64, want int) (page, error) {
		if err := c.wait(ctx); err != nil {
			return page{}, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()

		c.log.Debug().Int64("channel_id", channel.ID).Int64("after", cursor).Int("limit", want).Msg("telegram: calling MessagesGetHistory API")
		history, err := api.MessagesGetHistory(reqCtx, &tg.MessagesGetHistoryRequest{
			Peer:      peer,
			OffsetID:  int(cursor + 1),
			AddOffset: -want,
			Limit:     want,
			MinID:     int(cursor),
		})
		if err != nil {
			c.log.Error().Err(err).Int64("after", cursor).Msg("telegram: MessagesGetHistory failed")
			return page{}, fmt.Errorf("get history after %d: %w", cursor, c.rpcError(err))
		}
		return extractPage(history, channel.ID), nil
	}

	return collectAfter(ctx, fetch, minID, limit, c.pageSize)
}

// page is one history response: the usable messages and the highest raw id seen.
type page struct {
	messages []Message
	maxID    int64
	raw      int
}

type pageFunc func(ctx context.Context, cursor int64, want int) (page, error)

// collectAfter walks history forward from minID until limit or exhaustion.
func collectAfter(ctx context.Context, fetch pageFunc, minID int64, limit, pageSize int) ([]Message, error) {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var out []Message
	cursor := minID
	for limit <= 0 || len(out) < limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := pageSize
		if limit > 0 && limit-len(out) < want {
			want = limit - len(out)
		}

		p, err := fetch(ctx, cursor, want)
		if err != nil {
			return nil, err
		}
		if p.raw == 0 || p.maxID <= cursor {
			break
		}

		sort.Slice(p.messages, func(i, j int) bool { return p.messages[i].ID < p.messages[j].ID })
		for _, m := range p.messages {
			if m.ID <= cursor {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, m)
		}
		cursor = p.maxID
		if limit > 0 && len(out) >= limit {
			cursor = out[len(out)-1].ID
		}
	}

	return out, nil
}

// extractPage converts a history response into a page
func extractPage(messagesClass tg.MessagesMessagesClass, channelID int64) page {
	var raw []tg.MessageClass
	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	}

	p := page{raw: len(raw)}
	for _, msg := range raw {
		if id := int64(msg.GetID()); id > p.maxID {
			p.maxID = id
		}
		if m := parseMessage(msg, channelID); m != nil {
			p.messages = append(p.messages, *m)
		}
	}
	return p
}

// parseMessage converts a single telegram message to our Message type.
// Service and empty messages yield nil.
func parseMessage(msg tg.MessageClass, channelID int64) *Message {
	m, ok := msg.(*tg.Message)
	if !ok {
		return nil
	}

	out := &Message{
		ID:        int64(m.ID),
		ChannelID: channelID,
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0).UTC(),
		Views:     m.Views,
		Forwards:  m.Forwards,
	}
	if grouped, ok := m.GetGroupedID(); ok {
		out.GroupedID = grouped
	}
	if replies, ok := m.GetReplies(); ok {
		out.Replies = replies.Replies
	}

	switch media := m.Media.(type) {
	case *tg.MessageMediaPhoto:
		if photo, ok := media.Photo.(*tg.Photo); ok {
			out.HasPhoto = true
			out.Media = photoRef(photo)
		}
	case *tg.MessageMediaDocument:
		if doc, ok := media.Document.(*tg.Document); ok {
			out.HasVideo = strings.HasPrefix(doc.MimeType, "video")
		}
	}

	return out
}

// photoRef picks the largest size variant of a photo.
func photoRef(photo *tg.Photo) *MediaRef {
	ref := &MediaRef{
		Kind:          MediaKindPhoto,
		FileID:        photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		MimeType:      "image/jpeg",
	}

	best := -1
	for _, size := range photo.Sizes {
		var typ string
		var w, h, bytes int
		switch s := size.(type) {
		case *tg.PhotoSize:
			typ, w, h, bytes = s.Type, s.W, s.H, s.Size
		case *tg.PhotoSizeProgressive:
			typ, w, h = s.Type, s.W, s.H
			if n := len(s.Sizes); n > 0 {
				bytes = s.Sizes[n-1]
			}
		default:
			// stripped, cached and path sizes are inline previews
			continue
		}
		if area := w * h; area > best {
			best = area
			ref.ThumbSize, ref.Width, ref.Height, ref.Size = typ, w, h, int64(bytes)
		}
	}
	return ref
}

// DownloadPhoto streams the photo bytes into w.
func (c *Client) DownloadPhoto(ctx context.Context, ref *MediaRef, w io.Writer) error {
	if ref == nil || ref.Kind != MediaKindPhoto {
		return fmt.Errorf("download: not a photo reference")
	}

	api, err := c.API()
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	loc := &tg.InputPhotoFileLocation{
		ID:            ref.FileID,
		AccessHash:    ref.AccessHash,
		FileReference: ref.FileReference,
		ThumbSize:     ref.ThumbSize,
	}
	if _, err := downloader.NewDownloader().Download(api, loc).Stream(ctx, w); err != nil {
		return fmt.Errorf("download photo %d: %w", ref.FileID, c.rpcError(err))
	}
	return nil
}
