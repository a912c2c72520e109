package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"reviews-etl/models"
)

// rawHeader is the column layout of the raw scrape artifact.
var rawHeader = []string{
	"review_id", "user_name", "review_text", "rating", "review_date",
	"thumbs_up_count", "reply_content", "source_code", "source_name",
	"app_version", "origin",
}

// processedHeader is the exact column set (and order) of the cleaned artifact.
var processedHeader = []string{"review", "rating", "date", "source_label", "channel"}

// finalColumns is the column set the load stage requires in the
// sentiment-enriched artifact. Order in the file does not matter; presence does.
var finalColumns = []string{
	"source_code", "review", "rating", "date",
	"sentiment_label", "sentiment_score", "identified_theme",
}

// CSVWriter writes raw (uncleaned) reviews to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(rawHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteAll appends the given raw reviews to the CSV file.
func (c *CSVWriter) WriteAll(reviews []*models.RawReview) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range reviews {
		row := []string{
			r.ReviewID,
			r.UserName,
			r.ReviewText,
			r.Rating,
			r.ReviewDate,
			strconv.Itoa(r.ThumbsUpCount),
			r.ReplyContent,
			r.SourceCode,
			r.SourceName,
			r.AppVersion,
			r.Origin,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// WriteProcessed writes the cleaned batch to path with the exact
// review,rating,date,source_label,channel header. Intermediate directories
// are created automatically.
func WriteProcessed(path string, reviews []*models.CleanReview) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(processedHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, r := range reviews {
		row := []string{r.Review, strconv.Itoa(r.Rating), r.Date, r.SourceLabel, r.Channel}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// ReadRawReviews loads the raw scrape artifact. Missing file or missing
// critical columns abort the run before any cleaning pass executes.
func ReadRawReviews(path string) ([]*models.RawReview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header of %q: %w", path, err)
	}

	idx := indexColumns(header)
	if missing := missingColumns(idx, []string{"review_text", "rating", "review_date", "source_code"}); len(missing) > 0 {
		return nil, fmt.Errorf("csv: %q is missing required columns: %s", path, strings.Join(missing, ", "))
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read rows of %q: %w", path, err)
	}

	reviews := make([]*models.RawReview, 0, len(rows))
	for _, row := range rows {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}
		thumbs, _ := strconv.Atoi(get("thumbs_up_count"))
		reviews = append(reviews, &models.RawReview{
			ReviewID:      get("review_id"),
			UserName:      get("user_name"),
			ReviewText:    get("review_text"),
			Rating:        get("rating"),
			ReviewDate:    get("review_date"),
			ThumbsUpCount: thumbs,
			ReplyContent:  get("reply_content"),
			SourceCode:    get("source_code"),
			SourceName:    get("source_name"),
			AppVersion:    get("app_version"),
			Origin:        get("origin"),
		})
	}
	return reviews, nil
}

// ReadFactRecords loads the final enriched artifact for the load stage,
// validating the expected column set before anything touches the database.
// Empty sentiment/theme cells become SQL NULLs.
func ReadFactRecords(path string) ([]*models.FactRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header of %q: %w", path, err)
	}

	idx := indexColumns(header)
	if missing := missingColumns(idx, finalColumns); len(missing) > 0 {
		return nil, fmt.Errorf("csv: %q is missing required columns: %s", path, strings.Join(missing, ", "))
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read rows of %q: %w", path, err)
	}

	records := make([]*models.FactRecord, 0, len(rows))
	for n, row := range rows {
		get := func(col string) string {
			i := idx[col]
			if i >= len(row) {
				return ""
			}
			return row[i]
		}

		rating, err := strconv.Atoi(strings.TrimSpace(get("rating")))
		if err != nil {
			return nil, fmt.Errorf("csv: row %d of %q: rating %q is not an integer", n+2, path, get("rating"))
		}

		rec := &models.FactRecord{
			SourceCode: get("source_code"),
			Review:     get("review"),
			Rating:     rating,
			Date:       get("date"),
		}
		if s := strings.TrimSpace(get("sentiment_label")); s != "" {
			rec.SentimentLabel.String, rec.SentimentLabel.Valid = s, true
		}
		if s := strings.TrimSpace(get("sentiment_score")); s != "" {
			score, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("csv: row %d of %q: sentiment_score %q is not numeric", n+2, path, s)
			}
			rec.SentimentScore.Float64, rec.SentimentScore.Valid = score, true
		}
		if s := strings.TrimSpace(get("identified_theme")); s != "" {
			rec.IdentifiedTheme.String, rec.IdentifiedTheme.Valid = s, true
		}
		records = append(records, rec)
	}
	return records, nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	return idx
}

func missingColumns(idx map[string]int, required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
