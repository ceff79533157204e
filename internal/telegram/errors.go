package telegram

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// telegram errors
var (
	ErrNotAuthorized   = errors.New("telegram client not authorized")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotAChannel     = errors.New("not a channel")
)

var unauthorizedCodes = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

var notFoundCodes = []string{
	"USERNAME_NOT_OCCUPIED",
	"USERNAME_INVALID",
	"CHANNEL_PRIVATE",
	"CHANNEL_INVALID",
}

// classify maps rpc errors that invalidate the session or the channel onto sentinel errors.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case tgerr.Is(err, unauthorizedCodes...):
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	case tgerr.Is(err, notFoundCodes...):
		return fmt.Errorf("%w: %w", ErrChannelNotFound, err)
	}
	return err
}

// floodWait returns the pause demanded by a FLOOD_WAIT or FLOOD_PREMIUM_WAIT error.
func floodWait(err error) (time.Duration, bool) {
	d, ok := tgerr.AsFloodWait(err)
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}
