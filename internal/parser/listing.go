package parser

import "github.com/blockedby/carfeed/internal/models"

// scoredFields is the number of fields the completeness score counts.
const scoredFields = 7

// Completeness thresholds.
const (
	OKThreshold      = 0.7
	PartialThreshold = 0.3
)

// ErrEmptyText is the error marker recorded for empty or whitespace-only posts.
const ErrEmptyText = "empty text"

// ParsedListing is the structured result of parsing one post.
// Absent values are nil or empty, never zero sentinels.
type ParsedListing struct {
	Brand string
	Model string
	Title string

	Year          *int
	Month         *int
	EngineVolumeL *float64
	Turbo         *bool
	Horsepower    *int
	MileageKm     *int

	FuelType     string
	Transmission string
	DriveType    string
	BodyType     string
	Color        string

	PriceRub        *int64
	PriceNegotiable bool
	ConditionText   string
	City            string

	OriginalText string
	Errors       []string

	blocked bool
}

// IsValid reports whether the result can yield a listing: it needs a brand or title
// and no blocking error.
func (p *ParsedListing) IsValid() bool {
	return !p.blocked && (p.Brand != "" || p.Title != "")
}

// CompletenessScore is the share of the seven key fields that were extracted:
// brand, model, year, engine volume, mileage, price and horsepower.
func (p *ParsedListing) CompletenessScore() float64 {
	present := 0
	for _, ok := range []bool{
		p.Brand != "",
		p.Model != "",
		p.Year != nil,
		p.EngineVolumeL != nil,
		p.MileageKm != nil,
		p.PriceRub != nil,
		p.Horsepower != nil,
	} {
		if ok {
			present++
		}
	}
	return float64(present) / scoredFields
}

// Status classifies the result.
func (p *ParsedListing) Status() models.ParseStatus {
	return StatusForScore(p.IsValid(), p.CompletenessScore())
}

// StatusForScore maps validity and completeness to a parse status.
func StatusForScore(valid bool, score float64) models.ParseStatus {
	switch {
	case !valid:
		return models.ParseStatusFailed
	case score >= OKThreshold:
		return models.ParseStatusOK
	case score >= PartialThreshold:
		return models.ParseStatusPartial
	default:
		return models.ParseStatusFailed
	}
}
