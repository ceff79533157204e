// Package ingest runs channel imports: fetch, dedupe, parse, persist and audit.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/media"
	"github.com/blockedby/carfeed/internal/metrics"
	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/parser"
	"github.com/blockedby/carfeed/internal/repository"
	"github.com/blockedby/carfeed/internal/telegram"
)

// DefaultBatchSize is the fetch size when a run has no limit.
const DefaultBatchSize = 100

// ErrInterrupted marks a run stopped by cancellation between messages.
var ErrInterrupted = errors.New("import interrupted")

// MessageSource reads channel history.
type MessageSource interface {
	ResolveChannel(ctx context.Context, username string) (*telegram.Channel, error)
	FetchAfter(ctx context.Context, channel *telegram.Channel, minID int64, limit int) ([]telegram.Message, error)
}

// MediaFetcher stores message photos.
type MediaFetcher interface {
	Download(ctx context.Context, channel string, ref *telegram.MediaRef) (*media.Artifact, error)
}

// Ledger records processed messages.
type Ledger interface {
	Exists(ctx context.Context, channel string, messageID int64) (bool, error)
	Begin(ctx context.Context, entry *models.IngestedMessage) error
	Complete(ctx context.Context, entry *models.IngestedMessage, out repository.Outcome) (*models.Listing, error)
}

// CheckpointStore keeps the per-channel high-water mark.
type CheckpointStore interface {
	Get(ctx context.Context, channel string) (*models.ImportCheckpoint, error)
	Advance(ctx context.Context, channel string, lastMessageID, imported int64, at time.Time) (*models.ImportCheckpoint, error)
}

// RunStore persists the run audit trail.
type RunStore interface {
	Create(ctx context.Context, run *models.ImportRun) error
	Finish(ctx context.Context, run *models.ImportRun) error
}

// EventPublisher publishes listing events
type EventPublisher interface {
	PublishListingCreated(ctx context.Context, event ListingCreatedEvent) error
}

// ListingCreatedEvent is emitted for every listing created by a run.
type ListingCreatedEvent struct {
	ListingID         uuid.UUID `json:"listing_id"`
	RunID             uuid.UUID `json:"run_id"`
	Channel           string    `json:"channel"`
	MessageID         int64     `json:"message_id"`
	Title             string    `json:"title"`
	Status            string    `json:"status"`
	CompletenessScore float64   `json:"completeness_score"`
	PriceRub          *int64    `json:"price_rub,omitempty"`
	SourceURL         string    `json:"source_url"`
	Photos            int       `json:"photos"`
	CreatedAt         time.Time `json:"created_at"`
}

// Options selects what a run imports.
type Options struct {
	Channel   string
	Limit     int
	SkipMedia bool
}

// Deps are the collaborators of a Service. Media, Publisher and Guard are optional.
type Deps struct {
	Source      MessageSource
	Media       MediaFetcher
	Ledger      Ledger
	Checkpoints CheckpointStore
	Runs        RunStore
	Publisher   EventPublisher
	Guard       RunGuard
	Parser      *parser.Parser
	Log         *logger.Logger

	PublicHost string
	BatchSize  int
	Now        func() time.Time
}

// Service orchestrates imports.
type Service struct {
	source      MessageSource
	media       MediaFetcher
	ledger      Ledger
	checkpoints CheckpointStore
	runs        RunStore
	publisher   EventPublisher
	guard       RunGuard
	parser      *parser.Parser
	log         *logger.Logger

	publicHost string
	batchSize  int
	now        func() time.Time
}

// NewService creates a new import service
func NewService(d Deps) *Service {
	s := &Service{
		source:      d.Source,
		media:       d.Media,
		ledger:      d.Ledger,
		checkpoints: d.Checkpoints,
		runs:        d.Runs,
		publisher:   d.Publisher,
		guard:       d.Guard,
		parser:      d.Parser,
		log:         d.Log,
		publicHost:  d.PublicHost,
		batchSize:   d.BatchSize,
		now:         d.Now,
	}
	if s.guard == nil {
		s.guard = NewLocalGuard()
	}
	if s.parser == nil {
		s.parser = parser.New()
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	if s.publicHost == "" {
		s.publicHost = "t.me"
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// runState is the mutable bookkeeping of one run.
type runState struct {
	run *models.ImportRun
	log *logger.Logger

	// mark is the highest id whose ledger row is persisted; frozen stops it
	// once a message failed before reaching the ledger.
	mark   int64
	frozen bool

	// detail is the stack of a run-level panic.
	detail string
}

func (st *runState) recorded(id int64) {
	if !st.frozen && id > st.mark {
		st.mark = id
	}
}

// Run imports new messages of one channel and returns the finalized run.
// The error is the run-level failure cause, nil for success and partial runs.
// Runs refused by the guard return ErrAlreadyRunning and no run.
func (s *Service) Run(ctx context.Context, opts Options) (*models.ImportRun, error) {
	channel := NormalizeChannel(opts.Channel)
	if channel == "" {
		return nil, ErrChannelRequired
	}
	if opts.Limit < 0 {
		return nil, ErrInvalidLimit
	}

	release, err := s.guard.Acquire(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer release()

	run := models.NewImportRun(channel, opts.Limit, opts.SkipMedia, s.now())
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	st := &runState{run: run, log: s.log.With(channel, run.ID.String())}
	metrics.RunStarted()
	st.log.Info().Int("limit", opts.Limit).Bool("skip_media", opts.SkipMedia).Msg("import started")

	runErr := s.executeSafely(ctx, st, opts)
	return s.finalize(ctx, st, runErr)
}

func (s *Service) executeSafely(ctx context.Context, st *runState, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			st.detail = string(debug.Stack())
			st.log.Error().
				Interface("panic", r).
				Str("stack", st.detail).
				Msg("import panicked")
			err = fmt.Errorf("import panicked: %v", r)
		}
	}()
	return s.execute(ctx, st, opts)
}

func (s *Service) execute(ctx context.Context, st *runState, opts Options) error {
	run := st.run

	cp, err := s.checkpoints.Get(ctx, run.Channel)
	if err != nil {
		return err
	}
	st.mark = cp.LastMessageID

	channel, err := s.source.ResolveChannel(ctx, run.Channel)
	if err != nil {
		return fmt.Errorf("resolve channel: %w", err)
	}

	limit := opts.Limit
	if limit == 0 {
		limit = s.batchSize
	}

	msgs, err := s.source.FetchAfter(ctx, channel, cp.LastMessageID, limit)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	run.MessagesFetched = len(msgs)

	st.log.Info().
		Int64("after", cp.LastMessageID).
		Int("fetched", len(msgs)).
		Msg("messages fetched")

	for i := range msgs {
		if err := ctx.Err(); err != nil {
			st.log.Warn().Int("remaining", len(msgs)-i).Msg("import cancelled")
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		s.processSafely(ctx, st, &msgs[i], opts)
	}

	return nil
}

// processSafely handles one message; any failure is contained to that message.
func (s *Service) processSafely(ctx context.Context, st *runState, msg *telegram.Message, opts Options) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				st.log.Error().
					Int64("message_id", msg.ID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("message processing panicked")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return s.process(ctx, st, msg, opts)
	}()
	if err == nil {
		return
	}

	st.run.MessagesFailed++
	metrics.ObserveMessage(st.run.Channel, "error")
	if st.mark < msg.ID {
		st.frozen = true
	}
	st.log.Error().Err(err).Int64("message_id", msg.ID).Msg("message failed")
}

func (s *Service) process(ctx context.Context, st *runState, msg *telegram.Message, opts Options) error {
	run := st.run

	exists, err := s.ledger.Exists(ctx, run.Channel, msg.ID)
	if err != nil {
		return err
	}
	if exists {
		s.duplicate(st, msg)
		return nil
	}

	entry := newLedgerEntry(run.Channel, msg)
	if err := s.ledger.Begin(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyRecorded) {
			s.duplicate(st, msg)
			return nil
		}
		return err
	}
	run.MessagesNew++
	st.recorded(msg.ID)

	// The ledger row exists from here on, so the message must reach a terminal
	// status even when the run is cancelled. Cancellation takes effect between
	// messages; the download keeps its own timeout.
	work := context.WithoutCancel(ctx)

	var out repository.Outcome
	if !opts.SkipMedia {
		out.Media = s.downloadPhotos(work, st, msg)
	}

	if strings.TrimSpace(msg.Text) == "" {
		out.Status = models.ParseStatusSkipped
	} else {
		parsed := s.parser.Parse(msg.Text)
		out.Status = parsed.Status()
		out.Errors = parsed.Errors
		if out.Status.YieldsListing() {
			out.Listing = s.buildListing(run.Channel, msg, parsed)
		}
	}

	listing, err := s.ledger.Complete(work, entry, out)
	if err != nil {
		return err
	}

	switch out.Status {
	case models.ParseStatusOK:
		run.ParsedOK++
	case models.ParseStatusPartial:
		run.ParsedPartial++
	case models.ParseStatusFailed:
		run.MessagesFailed++
	case models.ParseStatusSkipped:
		run.MessagesSkipped++
	}
	metrics.ObserveMessage(run.Channel, string(out.Status))
	run.PhotosDownloaded += len(out.Media)

	st.log.Debug().
		Int64("message_id", msg.ID).
		Str("status", string(out.Status)).
		Int("photos", len(out.Media)).
		Msg("message processed")

	if listing != nil {
		run.ListingsCreated++
		metrics.ObserveListingCreated(run.Channel)
		s.publish(ctx, st, msg, listing, len(out.Media))
	}
	return nil
}

func (s *Service) duplicate(st *runState, msg *telegram.Message) {
	st.run.MessagesDuplicate++
	st.recorded(msg.ID)
	metrics.ObserveMessage(st.run.Channel, "duplicate")
	st.log.Debug().Int64("message_id", msg.ID).Msg("message already recorded")
}

// downloadPhotos never fails the message: a failed download leaves it without that photo.
func (s *Service) downloadPhotos(ctx context.Context, st *runState, msg *telegram.Message) []*models.Media {
	if s.media == nil || !msg.HasPhoto || msg.Media == nil {
		return nil
	}

	art, err := s.media.Download(ctx, st.run.Channel, msg.Media)
	if err != nil {
		metrics.ObserveMediaFailure(st.run.Channel)
		st.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("photo download failed")
		return nil
	}
	if art == nil {
		return nil
	}
	metrics.ObservePhoto(st.run.Channel)

	return []*models.Media{mediaFromArtifact(art)}
}

func (s *Service) publish(ctx context.Context, st *runState, msg *telegram.Message, listing *models.Listing, photos int) {
	if s.publisher == nil {
		return
	}

	event := ListingCreatedEvent{
		ListingID:         listing.ID,
		RunID:             st.run.ID,
		Channel:           st.run.Channel,
		MessageID:         msg.ID,
		Title:             listing.Title,
		Status:            string(listing.Status),
		CompletenessScore: listing.CompletenessScore,
		PriceRub:          listing.PriceRub,
		SourceURL:         listing.SourceURL,
		Photos:            photos,
		CreatedAt:         listing.CreatedAt,
	}
	if err := s.publisher.PublishListingCreated(ctx, event); err != nil {
		st.log.Warn().Err(err).Str("listing_id", listing.ID.String()).Msg("failed to publish listing event")
	}
}

// finalize writes the checkpoint and the terminal run state. It runs once per
// run, with cancellation detached so an interrupted run is still recorded.
func (s *Service) finalize(ctx context.Context, st *runState, runErr error) (*models.ImportRun, error) {
	ctx = context.WithoutCancel(ctx)
	run := st.run

	if _, err := s.checkpoints.Advance(ctx, run.Channel, st.mark, int64(run.MessagesNew), s.now()); err != nil {
		st.log.Error().Err(err).Msg("failed to advance checkpoint")
		if runErr == nil {
			runErr = err
		}
	}

	status := run.Outcome()
	if runErr != nil {
		status = models.RunStatusFailed
	}
	if err := run.Finish(status, runErr, s.now()); err != nil {
		return run, err
	}
	run.ErrorDetail = st.detail

	if err := s.runs.Finish(ctx, run); err != nil {
		st.log.Error().Err(err).Msg("failed to record run result")
		if runErr == nil {
			runErr = err
		}
	}

	metrics.RunFinished(run.Channel, string(run.Status), run.Duration())

	ev := st.log.Info()
	if run.Status == models.RunStatusFailed {
		ev = st.log.Error().Err(runErr)
	}
	ev.Str("status", string(run.Status)).
		Int("fetched", run.MessagesFetched).
		Int("new", run.MessagesNew).
		Int("duplicate", run.MessagesDuplicate).
		Int("parsed_ok", run.ParsedOK).
		Int("parsed_partial", run.ParsedPartial).
		Int("failed", run.MessagesFailed).
		Int("skipped", run.MessagesSkipped).
		Int("listings", run.ListingsCreated).
		Int("photos", run.PhotosDownloaded).
		Int64("checkpoint", st.mark).
		Dur("duration", run.Duration()).
		Msg("import finished")

	return run, runErr
}
