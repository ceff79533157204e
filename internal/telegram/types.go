package telegram

import (
	"time"
)

// MediaKindPhoto marks a downloadable photo reference.
const MediaKindPhoto = "photo"

// Message represents a parsed telegram channel post
type Message struct {
	ID        int64     // message id (unique within channel)
	ChannelID int64     // channel id
	GroupedID int64     // album id, 0 when the message is not part of an album
	Date      time.Time // message creation timestamp
	Text      string    // message text or media caption
	HasPhoto  bool
	HasVideo  bool
	Media     *MediaRef // photo reference, nil when the message has no photo
	Views     int
	Forwards  int
	Replies   int
}

// MediaRef locates a photo on telegram servers
type MediaRef struct {
	Kind          string
	FileID        int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string // size type of the largest variant
	Width         int
	Height        int
	Size          int64 // bytes, 0 when unknown
	MimeType      string
}

// Channel represents a telegram channel info
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
}
