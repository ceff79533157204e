package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/models"
)

// Outcome is everything that becomes durable once a message has been processed.
type Outcome struct {
	Status models.ParseStatus
	Errors []string

	// Media are downloaded artifacts in fetch order, not yet persisted.
	Media []*models.Media

	// Listing is set when the message yields one. BrandRaw and ModelRaw
	// drive the catalog match-or-create.
	Listing *models.Listing
}

// LedgerRepository records which messages have been ingested.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Exists reports whether the message already has a ledger entry.
func (r *LedgerRepository) Exists(ctx context.Context, channel string, messageID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.IngestedMessage{}).
		Where("channel = ? AND message_id = ?", channel, messageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check ledger: %w", err)
	}
	return count > 0, nil
}

// Get returns the ledger entry of a message, nil when absent.
func (r *LedgerRepository) Get(ctx context.Context, channel string, messageID int64) (*models.IngestedMessage, error) {
	var entry models.IngestedMessage
	err := r.db.WithContext(ctx).
		Where("channel = ? AND message_id = ?", channel, messageID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return &entry, nil
}

// Begin inserts the entry in state new. A concurrent or repeated insert for
// the same (channel, message id) yields ErrAlreadyRecorded.
func (r *LedgerRepository) Begin(ctx context.Context, entry *models.IngestedMessage) error {
	entry.ParseStatus = models.ParseStatusNew
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRecorded
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Complete makes the outcome of a message durable in one transaction: the parse
// status, its media, the listing with its photos, and the ledger-to-listing link.
// Caption-less album members are attached to the album listing.
func (r *LedgerRepository) Complete(ctx context.Context, entry *models.IngestedMessage, out Outcome) (*models.Listing, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case out.Listing != nil:
			if err := createListing(tx, entry, out); err != nil {
				return err
			}
		case entry.GroupedID != nil && len(out.Media) > 0:
			if err := joinAlbum(tx, entry, out.Media); err != nil {
				return err
			}
		default:
			if err := createMedia(tx, entry, out.Media, nil, 0); err != nil {
				return err
			}
		}

		entry.ParseStatus = out.Status
		entry.ParseErrors = out.Errors
		return tx.Model(entry).
			Select("ParseStatus", "ParseErrors", "ListingID", "UpdatedAt").
			Updates(entry).Error
	})
	if err != nil {
		return nil, fmt.Errorf("complete ledger entry %s/%d: %w", entry.Channel, entry.MessageID, err)
	}
	return out.Listing, nil
}

func createListing(tx *gorm.DB, entry *models.IngestedMessage, out Outcome) error {
	listing := out.Listing
	if err := linkCatalog(tx, listing); err != nil {
		return err
	}
	if err := tx.Create(listing).Error; err != nil {
		return fmt.Errorf("create listing: %w", err)
	}

	if err := createMedia(tx, entry, out.Media, &listing.ID, 0); err != nil {
		return err
	}
	entry.ListingID = &listing.ID

	if entry.GroupedID == nil {
		return nil
	}
	return adoptAlbumOrphans(tx, entry, listing.ID, len(out.Media))
}

// adoptAlbumOrphans attaches photos of album siblings recorded before the captioned message.
func adoptAlbumOrphans(tx *gorm.DB, entry *models.IngestedMessage, listingID uuid.UUID, start int) error {
	var orphans []*models.Media
	err := tx.Model(&models.Media{}).
		Joins("JOIN ingested_messages im ON im.id = media.ingested_message_id").
		Where("im.channel = ? AND im.grouped_id = ? AND im.id <> ? AND media.listing_id IS NULL",
			entry.Channel, *entry.GroupedID, entry.ID).
		Order("im.message_id, media.position").
		Find(&orphans).Error
	if err != nil {
		return fmt.Errorf("find album orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	owners := make([]uuid.UUID, 0, len(orphans))
	for i, m := range orphans {
		if err := attach(tx, m, listingID, start+i); err != nil {
			return err
		}
		owners = append(owners, m.IngestedMessageID)
	}

	return tx.Model(&models.IngestedMessage{}).
		Where("id IN ?", owners).
		Update("listing_id", listingID).Error
}

// joinAlbum stores media of a caption-less album member. When the album already
// has a listing the photos are appended to it, otherwise they wait for adoption.
func joinAlbum(tx *gorm.DB, entry *models.IngestedMessage, media []*models.Media) error {
	var owner models.IngestedMessage
	err := tx.Where("channel = ? AND grouped_id = ? AND listing_id IS NOT NULL", entry.Channel, *entry.GroupedID).
		Order("message_id").
		First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return createMedia(tx, entry, media, nil, 0)
	}
	if err != nil {
		return fmt.Errorf("find album listing: %w", err)
	}

	var attached int64
	if err := tx.Model(&models.Media{}).Where("listing_id = ?", *owner.ListingID).Count(&attached).Error; err != nil {
		return fmt.Errorf("count listing photos: %w", err)
	}

	entry.ListingID = owner.ListingID
	return createMedia(tx, entry, media, owner.ListingID, int(attached))
}

func createMedia(tx *gorm.DB, entry *models.IngestedMessage, media []*models.Media, listingID *uuid.UUID, start int) error {
	for i, m := range media {
		m.IngestedMessageID = entry.ID
		m.ListingID = listingID
		m.Position = start + i
		m.IsPrimary = listingID != nil && m.Position == 0
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("create media %s: %w", m.Name, err)
		}
	}
	return nil
}

func attach(tx *gorm.DB, m *models.Media, listingID uuid.UUID, position int) error {
	m.ListingID = &listingID
	m.Position = position
	m.IsPrimary = position == 0
	err := tx.Model(m).Select("ListingID", "Position", "IsPrimary").Updates(m).Error
	if err != nil {
		return fmt.Errorf("attach media %s: %w", m.Name, err)
	}
	return nil
}
