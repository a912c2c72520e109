package storage

import "reviews-etl/models"

// RawReviewWriter is the interface for persisting unprocessed scraped data.
type RawReviewWriter interface {
	WriteAll(reviews []*models.RawReview) error
	Close() error
}

// FactLoader is the interface the load stage drives: dimension upsert
// followed by batched fact insertion.
type FactLoader interface {
	Load(records []*models.FactRecord) (int64, error)
	Close() error
}
