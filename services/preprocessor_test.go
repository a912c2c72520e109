package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"reviews-etl/config"
	"reviews-etl/models"
	"reviews-etl/utils"
)

func newTestConfig() *config.Config {
	return &config.Config{
		Sources: []config.Source{
			{Code: "CBE", DisplayName: "Commercial Bank of Ethiopia"},
			{Code: "BOA", DisplayName: "Bank of Abyssinia"},
		},
		MinCleanRecords: 5,
		MaxDataLossPct:  5.0,
	}
}

func rawReview(text, rating, date, code string) *models.RawReview {
	return &models.RawReview{
		ReviewText: text,
		Rating:     rating,
		ReviewDate: date,
		SourceCode: code,
		Origin:     models.OriginGooglePlay,
	}
}

func TestProcessDedupesByTextAndSource(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	clean, err := p.Process([]*models.RawReview{
		rawReview("good app", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("good app", "4", "2024-05-02T10:00:00Z", "CBE"), // dup: same text+source
		rawReview("good app", "5", "2024-05-01T10:00:00Z", "BOA"), // same text, other source
	})
	require.NoError(t, err)
	require.Len(t, clean, 2)
	require.Equal(t, 1, p.Report().DuplicatesRemoved)

	// first occurrence wins
	require.Equal(t, 5, clean[0].Rating)
	require.Equal(t, "Commercial Bank of Ethiopia", clean[0].SourceLabel)
	require.Equal(t, "Bank of Abyssinia", clean[1].SourceLabel)
}

func TestProcessDropsMissingCriticalFields(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	clean, err := p.Process([]*models.RawReview{
		rawReview("", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("no rating", "", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("no date", "5", "", "CBE"),
		rawReview("complete", "5", "2024-05-01T10:00:00Z", "CBE"),
	})
	require.NoError(t, err)
	require.Len(t, clean, 1)
	require.Equal(t, 3, p.Report().MissingRemoved)
	require.Equal(t, "complete", clean[0].Review)
}

func TestProcessFillsNonCriticalDefaults(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	raw := rawReview("ok", "3", "2024-05-01T10:00:00Z", "CBE")
	raw.AppVersion = ""
	raw.ReplyContent = ""

	_, err := p.Process([]*models.RawReview{raw})
	require.NoError(t, err)
	require.Equal(t, "N/A", raw.AppVersion)
	require.Equal(t, "", raw.ReplyContent)
}

func TestProcessNormalizesDatesToUTC(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	clean, err := p.Process([]*models.RawReview{
		rawReview("afternoon", "5", "2024-05-01T22:30:00+03:00", "CBE"),
		// 01:00 +03:00 is still the previous day in UTC
		rawReview("past midnight", "5", "2024-01-01T01:00:00+03:00", "CBE"),
		rawReview("bare date", "5", "2024-07-15", "CBE"),
		rawReview("display form", "5", "March 3, 2024", "CBE"),
	})
	require.NoError(t, err)
	require.Equal(t, "2024-05-01", clean[0].Date)
	require.Equal(t, "2023-12-31", clean[1].Date)
	require.Equal(t, "2024-07-15", clean[2].Date)
	require.Equal(t, "2024-03-03", clean[3].Date)
}

func TestProcessAbortsOnUnparseableDate(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	_, err := p.Process([]*models.RawReview{
		rawReview("fine", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("broken", "5", "not a date", "CBE"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a date")
}

func TestProcessCleansText(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	clean, err := p.Process([]*models.RawReview{
		rawReview("Great App!!\n\nWorks   well", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("  \tPadded\r\nLines  ", "4", "2024-05-01T10:00:00Z", "CBE"),
	})
	require.NoError(t, err)
	require.Equal(t, "great app!! works well", clean[0].Review)
	require.Equal(t, "padded lines", clean[1].Review)
}

func TestProcessValidatesRatings(t *testing.T) {
	tests := []struct {
		rating string
		kept   bool
		want   int
	}{
		{"5", true, 5},
		{"1", true, 1},
		{"4.0", true, 4},
		{"7", false, 0},
		{"0", false, 0},
		{"-1", false, 0},
		{"four", false, 0},
	}

	for _, tt := range tests {
		p := NewPreprocessor(newTestConfig(), utils.NewLogger())
		clean, err := p.Process([]*models.RawReview{
			rawReview("review "+tt.rating, tt.rating, "2024-05-01T10:00:00Z", "CBE"),
		})
		require.NoError(t, err)
		if tt.kept {
			require.Len(t, clean, 1, "rating %q should survive", tt.rating)
			require.Equal(t, tt.want, clean[0].Rating)
		} else {
			require.Empty(t, clean, "rating %q should be dropped", tt.rating)
			require.Equal(t, 1, p.Report().InvalidRatingRemoved)
		}
	}
}

func TestProcessScenarioCounts(t *testing.T) {
	// 10 raw records: 2 exact duplicates, 1 missing date, 1 rating out of
	// range — expect 6 survivors and the per-pass counts to match.
	batch := []*models.RawReview{
		rawReview("review one", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("review one", "5", "2024-05-01T10:00:00Z", "CBE"), // dup
		rawReview("review two", "4", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("review two", "4", "2024-05-01T10:00:00Z", "CBE"), // dup
		rawReview("review three", "3", "", "CBE"),                   // missing date
		rawReview("review four", "7", "2024-05-01T10:00:00Z", "CBE"), // invalid rating
		rawReview("review five", "2", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("review six", "1", "2024-05-01T10:00:00Z", "BOA"),
		rawReview("review seven", "5", "2024-05-01T10:00:00Z", "BOA"),
		rawReview("review eight", "4", "2024-05-01T10:00:00Z", "BOA"),
	}

	p := NewPreprocessor(newTestConfig(), utils.NewLogger())
	clean, err := p.Process(batch)
	require.NoError(t, err)

	r := p.Report()
	require.Equal(t, 10, r.OriginalCount)
	require.Equal(t, 2, r.DuplicatesRemoved)
	require.Equal(t, 1, r.MissingRemoved)
	require.Equal(t, 1, r.InvalidRatingRemoved)
	require.Equal(t, 6, r.FinalCount)
	require.Len(t, clean, 6)
	require.InDelta(t, 40.0, r.DataLossPct(), 0.001)
}

func TestProcessZeroDataLoss(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	clean, err := p.Process([]*models.RawReview{
		rawReview("alpha", "5", "2024-05-01T10:00:00Z", "CBE"),
		rawReview("beta", "4", "2024-05-02T10:00:00Z", "CBE"),
		rawReview("gamma", "3", "2024-05-03T10:00:00Z", "BOA"),
	})
	require.NoError(t, err)
	require.Len(t, clean, 3)
	require.Zero(t, p.Report().TotalRemoved())
	require.Zero(t, p.Report().DataLossPct())
}

func TestProcessOutputShape(t *testing.T) {
	p := NewPreprocessor(newTestConfig(), utils.NewLogger())

	raw := rawReview("shape check", "5", "2024-05-01T10:00:00Z", "CBE")
	raw.SourceName = "" // label must fall back to the config mapping

	clean, err := p.Process([]*models.RawReview{raw})
	require.NoError(t, err)
	require.Len(t, clean, 1)

	got := clean[0]
	require.Equal(t, "shape check", got.Review)
	require.Equal(t, 5, got.Rating)
	require.Equal(t, "2024-05-01", got.Date)
	require.Equal(t, "Commercial Bank of Ethiopia", got.SourceLabel)
	require.Equal(t, models.OriginGooglePlay, got.Channel)
}
