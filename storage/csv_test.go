package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reviews-etl/models"
)

func TestWriteProcessedHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reviews_processed.csv")

	err := WriteProcessed(path, []*models.CleanReview{
		{Review: "great app", Rating: 5, Date: "2024-05-01", SourceLabel: "Commercial Bank of Ethiopia", Channel: models.OriginGooglePlay},
		{Review: "slow, but works", Rating: 3, Date: "2024-05-02", SourceLabel: "Bank of Abyssinia", Channel: models.OriginGooglePlay},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := splitLines(string(data))
	require.Len(t, lines, 3)
	require.Equal(t, "review,rating,date,source_label,channel", lines[0])
	require.Equal(t, "great app,5,2024-05-01,Commercial Bank of Ethiopia,Google Play Store", lines[1])
	// embedded comma forces quoting
	require.Equal(t, `"slow, but works",3,2024-05-02,Bank of Abyssinia,Google Play Store`, lines[2])
}

func TestRawCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews_raw.csv")

	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	in := &models.RawReview{
		ReviewID:      "abc-123",
		UserName:      "someone",
		ReviewText:    "Great App!!\n\nWorks   well",
		Rating:        "4",
		ReviewDate:    "2024-05-01T10:00:00Z",
		ThumbsUpCount: 7,
		ReplyContent:  "thanks!",
		SourceCode:    "CBE",
		SourceName:    "Commercial Bank of Ethiopia",
		AppVersion:    "5.2.1",
		Origin:        models.OriginGooglePlay,
	}
	require.NoError(t, w.WriteAll([]*models.RawReview{in}))
	require.NoError(t, w.Close())

	out, err := ReadRawReviews(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, in, out[0])
}

func TestReadRawReviewsMissingFile(t *testing.T) {
	_, err := ReadRawReviews(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestReadFactRecordsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.csv")
	content := "source_code,review,rating,date\nCBE,good,5,2024-05-01\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := ReadFactRecords(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sentiment_label")
	require.Contains(t, err.Error(), "sentiment_score")
	require.Contains(t, err.Error(), "identified_theme")
}

func TestReadFactRecordsNullables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.csv")
	content := "source_code,review,rating,date,sentiment_label,sentiment_score,identified_theme\n" +
		"CBE,good app,5,2024-05-01,positive,0.9876,Reliability\n" +
		"BOA,meh,3,2024-05-02,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := ReadFactRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "CBE", first.SourceCode)
	require.Equal(t, 5, first.Rating)
	require.True(t, first.SentimentLabel.Valid)
	require.Equal(t, "positive", first.SentimentLabel.String)
	require.True(t, first.SentimentScore.Valid)
	require.InDelta(t, 0.9876, first.SentimentScore.Float64, 1e-9)
	require.True(t, first.IdentifiedTheme.Valid)

	second := records[1]
	require.False(t, second.SentimentLabel.Valid)
	require.False(t, second.SentimentScore.Valid)
	require.False(t, second.IdentifiedTheme.Valid)
}

func TestReadFactRecordsRejectsBadRating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.csv")
	content := "source_code,review,rating,date,sentiment_label,sentiment_score,identified_theme\n" +
		"CBE,good,five,2024-05-01,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := ReadFactRecords(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rating")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
