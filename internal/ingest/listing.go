package ingest

import (
	"fmt"

	"github.com/blockedby/carfeed/internal/media"
	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/parser"
	"github.com/blockedby/carfeed/internal/telegram"
)

// SourceURL is the public link of a channel post.
func SourceURL(host, channel string, messageID int64) string {
	return fmt.Sprintf("https://%s/%s/%d", host, channel, messageID)
}

func (s *Service) buildListing(channel string, msg *telegram.Message, p *parser.ParsedListing) *models.Listing {
	score := p.CompletenessScore()
	return &models.Listing{
		Title:             p.Title,
		BrandRaw:          p.Brand,
		ModelRaw:          p.Model,
		Year:              p.Year,
		Month:             p.Month,
		EngineVolumeL:     p.EngineVolumeL,
		Turbo:             p.Turbo,
		Horsepower:        p.Horsepower,
		MileageKm:         p.MileageKm,
		FuelType:          p.FuelType,
		Transmission:      p.Transmission,
		DriveType:         p.DriveType,
		BodyType:          p.BodyType,
		Color:             p.Color,
		PriceRub:          p.PriceRub,
		PriceNegotiable:   p.PriceNegotiable,
		ConditionText:     p.ConditionText,
		City:              p.City,
		SourceType:        models.SourceTypeTelegram,
		SourceURL:         SourceURL(s.publicHost, channel, msg.ID),
		OriginalText:      msg.Text,
		CompletenessScore: score,
		Status:            models.ListingStatusFor(score),
	}
}

func newLedgerEntry(channel string, msg *telegram.Message) *models.IngestedMessage {
	entry := &models.IngestedMessage{
		Channel:   channel,
		MessageID: msg.ID,
		PostedAt:  msg.Date,
		Text:      msg.Text,
		HasPhoto:  msg.HasPhoto,
		HasVideo:  msg.HasVideo,
		Meta: models.MessageMeta{
			ChannelID: msg.ChannelID,
			Views:     msg.Views,
			Forwards:  msg.Forwards,
			Replies:   msg.Replies,
			HasVideo:  msg.HasVideo,
		},
	}
	if msg.GroupedID != 0 {
		grouped := msg.GroupedID
		entry.GroupedID = &grouped
	}
	return entry
}

func mediaFromArtifact(a *media.Artifact) *models.Media {
	m := &models.Media{
		Kind:        models.MediaKindPhoto,
		FileID:      a.FileID,
		Name:        a.Name,
		BlobKey:     a.Key,
		BlobURI:     a.URI,
		Fingerprint: a.Fingerprint,
		SizeBytes:   a.SizeBytes,
	}
	if a.Width > 0 && a.Height > 0 {
		w, h := a.Width, a.Height
		m.Width, m.Height = &w, &h
	}
	return m
}
