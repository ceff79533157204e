package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/carfeed/internal/models"
)

func newEntry(channel string, id int64, grouped *int64) *models.IngestedMessage {
	return &models.IngestedMessage{
		Channel:   channel,
		MessageID: id,
		GroupedID: grouped,
		PostedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		HasPhoto:  true,
	}
}

func photo(name string) *models.Media {
	return &models.Media{
		Kind:        models.MediaKindPhoto,
		Name:        name,
		BlobKey:     "telegram/cars/" + name,
		Fingerprint: name,
	}
}

func listing(brand, model string) *models.Listing {
	return &models.Listing{
		Title:      brand + " " + model,
		BrandRaw:   brand,
		ModelRaw:   model,
		SourceType: models.SourceTypeTelegram,
		Status:     models.ListingStatusDraft,
	}
}

func TestLedger_BeginTwice(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Begin(ctx, newEntry("cars", 1, nil)))

	err := repo.Begin(ctx, newEntry("cars", 1, nil))
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	// same id in another channel is a different message
	require.NoError(t, repo.Begin(ctx, newEntry("trucks", 1, nil)))

	exists, err := repo.Exists(ctx, "cars", 1)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "cars", 2)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_CompleteWithListing(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	listings := NewListingsRepository(db)
	ctx := context.Background()

	entry := newEntry("cars", 7, nil)
	require.NoError(t, repo.Begin(ctx, entry))

	created, err := repo.Complete(ctx, entry, Outcome{
		Status:  models.ParseStatusOK,
		Media:   []*models.Media{photo("a.jpg"), photo("b.jpg")},
		Listing: listing("Toyota", "Prius"),
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	stored, err := repo.Get(ctx, "cars", 7)
	require.NoError(t, err)
	assert.Equal(t, models.ParseStatusOK, stored.ParseStatus)
	require.NotNil(t, stored.ListingID)
	assert.Equal(t, created.ID, *stored.ListingID)

	got, err := listings.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 2)
	assert.Equal(t, "a.jpg", got.Photos[0].Name)
	assert.True(t, got.Photos[0].IsPrimary)
	assert.Equal(t, 1, got.Photos[1].Position)
	assert.False(t, got.Photos[1].IsPrimary)
	require.NotNil(t, got.BrandID)
	require.NotNil(t, got.CarModelID)
}

func TestLedger_CompleteWithoutListing(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	entry := newEntry("cars", 3, nil)
	require.NoError(t, repo.Begin(ctx, entry))

	_, err := repo.Complete(ctx, entry, Outcome{
		Status: models.ParseStatusFailed,
		Errors: []string{"brand: not found", "price: not found"},
	})
	require.NoError(t, err)

	stored, err := repo.Get(ctx, "cars", 3)
	require.NoError(t, err)
	assert.Equal(t, models.ParseStatusFailed, stored.ParseStatus)
	assert.Equal(t, []string{"brand: not found", "price: not found"}, stored.ParseErrors)
	assert.Nil(t, stored.ListingID)

	var listingsCount int64
	require.NoError(t, db.Model(&models.Listing{}).Count(&listingsCount).Error)
	assert.Zero(t, listingsCount)
}

func TestLedger_AlbumOrphansAdopted(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	listings := NewListingsRepository(db)
	ctx := context.Background()
	group := int64(555)

	// caption-less members arrive first
	for _, id := range []int64{10, 11} {
		e := newEntry("cars", id, &group)
		require.NoError(t, repo.Begin(ctx, e))
		_, err := repo.Complete(ctx, e, Outcome{
			Status: models.ParseStatusSkipped,
			Media:  []*models.Media{photo(fmt.Sprintf("m%d.jpg", id-10))},
		})
		require.NoError(t, err)
	}

	captioned := newEntry("cars", 12, &group)
	require.NoError(t, repo.Begin(ctx, captioned))
	created, err := repo.Complete(ctx, captioned, Outcome{
		Status:  models.ParseStatusOK,
		Media:   []*models.Media{photo("own.jpg")},
		Listing: listing("Honda", "Fit"),
	})
	require.NoError(t, err)

	got, err := listings.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 3)
	assert.Equal(t, "own.jpg", got.Photos[0].Name)
	assert.True(t, got.Photos[0].IsPrimary)
	assert.Equal(t, "m0.jpg", got.Photos[1].Name)
	assert.Equal(t, "m1.jpg", got.Photos[2].Name)

	member, err := repo.Get(ctx, "cars", 10)
	require.NoError(t, err)
	assert.Equal(t, models.ParseStatusSkipped, member.ParseStatus)
	require.NotNil(t, member.ListingID)
	assert.Equal(t, created.ID, *member.ListingID)
}

func TestLedger_AlbumMemberJoinsExistingListing(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	listings := NewListingsRepository(db)
	ctx := context.Background()
	group := int64(777)

	captioned := newEntry("cars", 20, &group)
	require.NoError(t, repo.Begin(ctx, captioned))
	created, err := repo.Complete(ctx, captioned, Outcome{
		Status:  models.ParseStatusPartial,
		Media:   []*models.Media{photo("first.jpg")},
		Listing: listing("Nissan", "Note"),
	})
	require.NoError(t, err)

	member := newEntry("cars", 21, &group)
	require.NoError(t, repo.Begin(ctx, member))
	_, err = repo.Complete(ctx, member, Outcome{
		Status: models.ParseStatusSkipped,
		Media:  []*models.Media{photo("second.jpg")},
	})
	require.NoError(t, err)

	got, err := listings.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Photos, 2)
	assert.Equal(t, "second.jpg", got.Photos[1].Name)
	assert.Equal(t, 1, got.Photos[1].Position)
	assert.False(t, got.Photos[1].IsPrimary)

	stored, err := repo.Get(ctx, "cars", 21)
	require.NoError(t, err)
	require.NotNil(t, stored.ListingID)
	assert.Equal(t, created.ID, *stored.ListingID)
}

func TestCatalog_MatchesBrandCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerRepository(db)
	listings := NewListingsRepository(db)
	ctx := context.Background()

	for i, brand := range []string{"Toyota", "TOYOTA", "toyota"} {
		e := newEntry("cars", int64(100+i), nil)
		require.NoError(t, repo.Begin(ctx, e))
		_, err := repo.Complete(ctx, e, Outcome{
			Status:  models.ParseStatusOK,
			Listing: listing(brand, "Camry"),
		})
		require.NoError(t, err)
	}

	brands, err := listings.Brands(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 1)
	assert.Equal(t, "Toyota", brands[0].Name)

	var modelsCount int64
	require.NoError(t, db.Model(&models.CarModel{}).Count(&modelsCount).Error)
	assert.Equal(t, int64(1), modelsCount)

	n, err := listings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
