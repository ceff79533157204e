// Package media downloads message photos into the blob store.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"io"
	"path"
	"time"

	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/storage"
	"github.com/blockedby/carfeed/internal/telegram"
)

// ErrTooLarge is returned when a photo exceeds the configured size bound.
var ErrTooLarge = errors.New("media exceeds size limit")

// DefaultMaxBytes bounds a single photo.
const DefaultMaxBytes = 10 << 20

// Source streams photo bytes from telegram.
type Source interface {
	DownloadPhoto(ctx context.Context, ref *telegram.MediaRef, w io.Writer) error
}

// Artifact is a stored photo.
type Artifact struct {
	FileID      int64
	Name        string
	Key         string
	URI         string
	Fingerprint string
	SizeBytes   int64
	Width       int
	Height      int
	MimeType    string
}

// Downloader fetches photos, fingerprints them and writes them to a blob store.
type Downloader struct {
	source   Source
	store    storage.BlobStore
	maxBytes int64
	timeout  time.Duration
	log      *logger.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithMaxBytes sets the size bound.
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.maxBytes = n
		}
	}
}

// WithTimeout sets the per-photo download timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Downloader) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(source Source, store storage.BlobStore, log *logger.Logger, opts ...Option) *Downloader {
	if log == nil {
		log = logger.Get()
	}
	d := &Downloader{
		source:   source,
		store:    store,
		maxBytes: DefaultMaxBytes,
		timeout:  60 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download stores the photo behind ref and returns its artifact.
// References that are not photos yield (nil, nil).
func (d *Downloader) Download(ctx context.Context, channel string, ref *telegram.MediaRef) (*Artifact, error) {
	if ref == nil || ref.Kind != telegram.MediaKindPhoto {
		return nil, nil
	}
	if ref.Size > d.maxBytes {
		return nil, fmt.Errorf("photo %d is %d bytes: %w", ref.FileID, ref.Size, ErrTooLarge)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, remaining: d.maxBytes}
	if err := d.source.DownloadPhoto(ctx, ref, lw); err != nil {
		if lw.exceeded {
			return nil, fmt.Errorf("photo %d: %w", ref.FileID, ErrTooLarge)
		}
		return nil, fmt.Errorf("download photo %d: %w", ref.FileID, err)
	}
	data := buf.Bytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("download photo %d: empty content", ref.FileID)
	}

	sum := sha256.Sum256(data)
	fingerprint := hex.EncodeToString(sum[:])
	name := fmt.Sprintf("tg_%d_%s.jpg", ref.FileID, fingerprint[:12])
	key := path.Join("telegram", channel, name)

	uri, err := d.store.PutObject(ctx, key, mimeType(ref), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store photo %d: %w", ref.FileID, err)
	}

	width, height := ref.Width, ref.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}

	d.log.Debug().Str("channel", channel).Str("key", key).Int("bytes", len(data)).Msg("media: photo stored")

	return &Artifact{
		FileID:      ref.FileID,
		Name:        name,
		Key:         key,
		URI:         uri,
		Fingerprint: fingerprint,
		SizeBytes:   int64(len(data)),
		Width:       width,
		Height:      height,
		MimeType:    mimeType(ref),
	}, nil
}

func mimeType(ref *telegram.MediaRef) string {
	if ref.MimeType != "" {
		return ref.MimeType
	}
	return "image/jpeg"
}

// limitWriter fails once more than remaining bytes are written.
type limitWriter struct {
	w         io.Writer
	remaining int64
	exceeded  bool
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		l.exceeded = true
		return 0, ErrTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}
