package models

import "database/sql"

// OriginGooglePlay is the channel label attached to every review scraped
// from the Play Store.
const OriginGooglePlay = "Google Play Store"

// RawReview holds one unprocessed review exactly as scraped from the store.
// This is written to CSV before any cleaning or transformation; every field
// is kept as source-supplied text so nothing is lost before preprocessing.
type RawReview struct {
	ReviewID      string
	UserName      string
	ReviewText    string
	Rating        string
	ReviewDate    string
	ThumbsUpCount int
	ReplyContent  string
	SourceCode    string
	SourceName    string
	AppVersion    string
	Origin        string
}

// CleanReview is the validated record produced by the preprocessing pipeline.
// All five fields are always present: the pipeline drops anything that cannot
// satisfy that.
type CleanReview struct {
	Review      string
	Rating      int
	Date        string // YYYY-MM-DD
	SourceLabel string
	Channel     string
}

// FactRecord is one row of the final (sentiment-enriched) artifact, ready for
// insertion into the review_fact table. The sentiment and theme fields are
// produced by downstream classifiers and may be absent.
type FactRecord struct {
	SourceCode      string
	Review          string
	Rating          int
	Date            string
	SentimentLabel  sql.NullString
	SentimentScore  sql.NullFloat64
	IdentifiedTheme sql.NullString
}

// PreprocessReport accumulates the per-pass removal counts for one
// preprocessing run.
type PreprocessReport struct {
	OriginalCount        int
	DuplicatesRemoved    int
	MissingRemoved       int
	InvalidRatingRemoved int
	FinalCount           int
}

// TotalRemoved is the number of raw records that did not survive cleaning.
func (r *PreprocessReport) TotalRemoved() int {
	return r.DuplicatesRemoved + r.MissingRemoved + r.InvalidRatingRemoved
}

// DataLossPct is the share of the original batch lost during cleaning.
func (r *PreprocessReport) DataLossPct() float64 {
	if r.OriginalCount == 0 {
		return 0
	}
	return float64(r.TotalRemoved()) / float64(r.OriginalCount) * 100
}
