// Package models defines the persisted records of the ingestion pipeline.
package models

// ParseStatus is the lifecycle state of an ingested message.
type ParseStatus string

// ParseStatus constants. Every message starts as new and moves to exactly one terminal state.
const (
	ParseStatusNew     ParseStatus = "new"
	ParseStatusOK      ParseStatus = "parsed_ok"
	ParseStatusPartial ParseStatus = "parsed_partial"
	ParseStatusFailed  ParseStatus = "parse_failed"
	ParseStatusSkipped ParseStatus = "skipped"
)

// Terminal reports whether no further transition is expected.
func (s ParseStatus) Terminal() bool {
	return s != ParseStatusNew && s != ""
}

// YieldsListing reports whether messages in this state produce a listing.
func (s ParseStatus) YieldsListing() bool {
	return s == ParseStatusOK || s == ParseStatusPartial
}

// ListingStatus is the moderation state of a listing.
type ListingStatus string

// ListingStatus constants. Ingestion only produces draft or review; publishing is an operator action.
const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusReview    ListingStatus = "review"
	ListingStatusPublished ListingStatus = "published"
)

// ReviewThreshold is the completeness score at which a new listing goes to review instead of draft.
const ReviewThreshold = 0.7

// ListingStatusFor picks the initial moderation state for a freshly parsed listing.
func ListingStatusFor(completeness float64) ListingStatus {
	if completeness >= ReviewThreshold {
		return ListingStatusReview
	}
	return ListingStatusDraft
}

// RunStatus is the state of an import run.
type RunStatus string

// RunStatus constants.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether the run has been finalized.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}
