package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reviews-etl/config"
	"reviews-etl/models"
	"reviews-etl/utils"
)

var (
	// lineBreakRegexp matches runs of newline/carriage-return characters
	lineBreakRegexp = regexp.MustCompile(`[\r\n]+`)
	// whitespaceRegexp matches runs of any whitespace
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

// dateLayouts are the timestamp formats accepted for review_date, tried in
// order. Layouts without a zone are taken as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006", // display form rendered in the reviews panel
}

// Preprocessor cleans a scraped review batch through a fixed sequence of
// passes: dedupe, missing-value handling, date normalization, text cleaning,
// rating validation, final column selection. The order matters — later passes
// assume the invariants established by earlier ones.
type Preprocessor struct {
	cfg    *config.Config
	logger *utils.Logger
	report models.PreprocessReport
}

// NewPreprocessor creates a Preprocessor with the given config and logger.
func NewPreprocessor(cfg *config.Config, logger *utils.Logger) *Preprocessor {
	return &Preprocessor{cfg: cfg, logger: logger}
}

// Process runs the full cleaning pipeline over one raw batch and returns the
// validated records. Bad data is counted and filtered, never raised — except
// unparseable dates, which abort the whole run.
func (p *Preprocessor) Process(raw []*models.RawReview) ([]*models.CleanReview, error) {
	p.report = models.PreprocessReport{OriginalCount: len(raw)}
	p.logger.Info("[preprocess] Starting pipeline with %d raw reviews", len(raw))

	batch := p.removeDuplicates(raw)
	batch = p.handleMissingValues(batch)

	if err := p.normalizeDates(batch); err != nil {
		return nil, fmt.Errorf("normalize dates: %w", err)
	}

	p.cleanText(batch)
	batch = p.validateRatings(batch)

	clean, err := p.prepareOutput(batch)
	if err != nil {
		return nil, fmt.Errorf("prepare output: %w", err)
	}

	p.report.FinalCount = len(clean)
	return clean, nil
}

// Report returns the metrics of the last Process call.
func (p *Preprocessor) Report() *models.PreprocessReport {
	return &p.report
}

// removeDuplicates drops records sharing (review_text, source_code) with an
// earlier record. First occurrence wins.
func (p *Preprocessor) removeDuplicates(in []*models.RawReview) []*models.RawReview {
	p.logger.Info("[preprocess] [1/6] Removing duplicates...")

	seen := make(map[string]struct{}, len(in))
	out := make([]*models.RawReview, 0, len(in))
	for _, r := range in {
		key := r.ReviewText + "\x1f" + r.SourceCode
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}

	p.report.DuplicatesRemoved = len(in) - len(out)
	p.logger.Info("[preprocess] Removed %d duplicates — %d remaining",
		p.report.DuplicatesRemoved, len(out))
	return out
}

// handleMissingValues drops records missing any critical field (review text,
// rating, review date) and fills defaults for the non-critical ones.
func (p *Preprocessor) handleMissingValues(in []*models.RawReview) []*models.RawReview {
	p.logger.Info("[preprocess] [2/6] Handling missing values...")

	out := make([]*models.RawReview, 0, len(in))
	for _, r := range in {
		if strings.TrimSpace(r.ReviewText) == "" ||
			strings.TrimSpace(r.Rating) == "" ||
			strings.TrimSpace(r.ReviewDate) == "" {
			continue
		}
		if strings.TrimSpace(r.AppVersion) == "" {
			r.AppVersion = "N/A"
		}
		out = append(out, r)
	}

	p.report.MissingRemoved = len(in) - len(out)
	p.logger.Info("[preprocess] Removed %d rows with missing critical data — %d remaining",
		p.report.MissingRemoved, len(out))
	return out
}

// normalizeDates rewrites every review_date as a UTC YYYY-MM-DD calendar
// date, in place. A date that parses under none of the accepted layouts is a
// hard error that aborts the run — unlike the other passes, which filter.
func (p *Preprocessor) normalizeDates(batch []*models.RawReview) error {
	p.logger.Info("[preprocess] [3/6] Normalizing dates...")

	for _, r := range batch {
		ts, err := parseReviewDate(r.ReviewDate)
		if err != nil {
			return err
		}
		r.ReviewDate = ts.UTC().Format("2006-01-02")
	}

	p.logger.Info("[preprocess] Date normalization to YYYY-MM-DD completed")
	return nil
}

func parseReviewDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable review_date %q", raw)
}

// cleanText applies basic normalization to review and reply text: lowercase,
// line breaks to spaces, collapsed whitespace, trimmed. Empty values pass
// through untouched.
func (p *Preprocessor) cleanText(batch []*models.RawReview) {
	p.logger.Info("[preprocess] [4/6] Cleaning text data...")

	for _, r := range batch {
		r.ReviewText = basicTextClean(r.ReviewText)
		r.ReplyContent = basicTextClean(r.ReplyContent)
	}

	p.logger.Info("[preprocess] Text cleaning completed (lowercasing, whitespace collapse)")
}

func basicTextClean(text string) string {
	if text == "" {
		return text
	}
	text = strings.ToLower(text)
	text = lineBreakRegexp.ReplaceAllString(text, " ")
	text = whitespaceRegexp.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// validateRatings coerces every rating to an integer and drops records whose
// rating is unparseable or outside 1–5. Surviving ratings are rewritten in
// canonical integer form so the projection pass can rely on it.
func (p *Preprocessor) validateRatings(in []*models.RawReview) []*models.RawReview {
	p.logger.Info("[preprocess] [5/6] Validating ratings...")

	out := make([]*models.RawReview, 0, len(in))
	for _, r := range in {
		n, ok := coerceRating(r.Rating)
		if !ok || n < 1 || n > 5 {
			continue
		}
		r.Rating = strconv.Itoa(n)
		out = append(out, r)
	}

	p.report.InvalidRatingRemoved = len(in) - len(out)
	p.logger.Info("[preprocess] Removed %d rows with invalid ratings — %d remaining",
		p.report.InvalidRatingRemoved, len(out))
	return out
}

// coerceRating converts a raw rating string to an integer. Fractional values
// are truncated; anything non-numeric counts as missing.
func coerceRating(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// prepareOutput projects the surviving records onto the final column set:
// review, rating, date, source_label, channel.
func (p *Preprocessor) prepareOutput(batch []*models.RawReview) ([]*models.CleanReview, error) {
	p.logger.Info("[preprocess] [6/6] Preparing final output columns...")

	out := make([]*models.CleanReview, 0, len(batch))
	for _, r := range batch {
		rating, err := strconv.Atoi(r.Rating)
		if err != nil {
			// validateRatings guarantees integer form; reaching here is a bug
			return nil, fmt.Errorf("rating %q is not an integer", r.Rating)
		}

		label := strings.TrimSpace(r.SourceName)
		if label == "" {
			label = p.cfg.SourceName(r.SourceCode)
		}

		out = append(out, &models.CleanReview{
			Review:      r.ReviewText,
			Rating:      rating,
			Date:        r.ReviewDate,
			SourceLabel: label,
			Channel:     models.OriginGooglePlay,
		})
	}

	p.logger.Info("[preprocess] Final output columns prepared: review, rating, date, source_label, channel")
	return out, nil
}

// PrintReport prints the preprocessing metrics and the two quality gates.
// The gates report pass/fail only — a failed gate never aborts the run.
func (p *Preprocessor) PrintReport() {
	r := &p.report
	sep := strings.Repeat("=", 60)

	fmt.Printf("\n%s\nPREPROCESSING REPORT\n%s\n", sep, sep)
	fmt.Printf("Original records (raw scrape) : %d\n", r.OriginalCount)
	fmt.Printf("Duplicates removed            : %d\n", r.DuplicatesRemoved)
	fmt.Printf("Missing critical data removed : %d\n", r.MissingRemoved)
	fmt.Printf("Invalid ratings removed       : %d\n", r.InvalidRatingRemoved)
	fmt.Printf("%s\n", strings.Repeat("-", 60))
	fmt.Printf("Final records (cleaned)       : %d\n", r.FinalCount)
	fmt.Printf("Total data loss               : %d (%.2f%%)\n", r.TotalRemoved(), r.DataLossPct())

	countGate := "✗ Failed"
	if r.FinalCount >= p.cfg.MinCleanRecords {
		countGate = "✓ Passed"
	}
	lossGate := "✗ Failed"
	if r.DataLossPct() < p.cfg.MaxDataLossPct {
		lossGate = "✓ Passed"
	}

	fmt.Printf("\n--- QUALITY GATES ---\n")
	fmt.Printf("Gate 1: %d+ clean records  : %s (%d collected)\n",
		p.cfg.MinCleanRecords, countGate, r.FinalCount)
	fmt.Printf("Gate 2: <%.1f%% data loss    : %s (%.2f%%)\n",
		p.cfg.MaxDataLossPct, lossGate, r.DataLossPct())
	fmt.Printf("%s\n", sep)
}
