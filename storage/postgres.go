package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"reviews-etl/models"
	"reviews-etl/utils"
)

const factBatchSize = 100

// PostgresLoader loads the enriched review batch into the two-table star
// schema: source_dimension (one row per source) and review_fact (one row per
// review, referencing the dimension by surrogate key).
type PostgresLoader struct {
	db      *sql.DB
	logger  *utils.Logger
	nameFor func(code string) string
}

// NewPostgresLoader opens a connection to PostgreSQL (pinging with the given
// retry strategy), runs schema migrations and returns a ready-to-use loader.
func NewPostgresLoader(dsn string, nameFor func(string) string, retry *utils.RetryConfig, logger *utils.Logger) (*PostgresLoader, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := retry.Do("postgres-connect", db.Ping); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	l := &PostgresLoader{db: db, logger: logger, nameFor: nameFor}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return l, nil
}

// migrate creates the schema if absent. Migrations are idempotent and
// additive only: new optional fact columns are introduced via ADD COLUMN IF
// NOT EXISTS so existing rows survive untouched. The natural-key uniqueness
// constraint on review_fact is what makes repeated loads idempotent.
func (l *PostgresLoader) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS source_dimension (
			id           SERIAL PRIMARY KEY,
			code         VARCHAR(50)  UNIQUE NOT NULL,
			display_name VARCHAR(255) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS review_fact (
			id              SERIAL PRIMARY KEY,
			source_id       INT NOT NULL REFERENCES source_dimension(id) ON DELETE CASCADE,
			review_text     TEXT NOT NULL,
			rating          INT NOT NULL CHECK (rating >= 1 AND rating <= 5),
			review_date     DATE NOT NULL,
			sentiment_label VARCHAR(50),
			sentiment_score NUMERIC(5,4),
			CONSTRAINT review_fact_natural_key UNIQUE (source_id, review_text, review_date)
		);

		ALTER TABLE review_fact ADD COLUMN IF NOT EXISTS identified_theme VARCHAR(100);
	`)
	return err
}

// Load runs the two-phase write: dimension upsert, then batched fact insert.
// Each phase has its own transaction — a fact-insert failure leaves already
// committed dimension rows in place.
func (l *PostgresLoader) Load(records []*models.FactRecord) (int64, error) {
	lookup, err := l.upsertSources(records)
	if err != nil {
		return 0, fmt.Errorf("postgres: source upsert: %w", err)
	}
	inserted, err := l.insertFacts(records, lookup)
	if err != nil {
		return 0, fmt.Errorf("postgres: fact insert: %w", err)
	}
	return inserted, nil
}

// upsertSources inserts every distinct source code in the batch into
// source_dimension (no-op on conflict) and reads back the whole table so the
// lookup also covers sources populated by earlier runs.
func (l *PostgresLoader) upsertSources(records []*models.FactRecord) (map[string]int64, error) {
	codes := distinctSourceCodes(records)
	l.logger.Info("[load] Upserting %d distinct sources...", len(codes))

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}

	for _, code := range codes {
		_, err := tx.Exec(`
			INSERT INTO source_dimension (code, display_name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, code, l.nameFor(code))
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert source %q: %w", code, err)
		}
	}

	rows, err := tx.Query(`SELECT id, code FROM source_dimension`)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("read back dimension: %w", err)
	}

	lookup := make(map[string]int64)
	for rows.Next() {
		var id int64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			rows.Close()
			_ = tx.Rollback()
			return nil, fmt.Errorf("scan dimension row: %w", err)
		}
		lookup[code] = id
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		_ = tx.Rollback()
		return nil, fmt.Errorf("iterate dimension rows: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	l.logger.Info("[load] Dimension ready — %d sources known", len(lookup))
	return lookup, nil
}

// insertFacts bulk-inserts the fact rows in batches, suppressing natural-key
// duplicates via ON CONFLICT DO NOTHING. Records whose source code is absent
// from the lookup are skipped with a warning rather than aborting the batch.
// Returns the number of rows the store actually accepted.
func (l *PostgresLoader) insertFacts(records []*models.FactRecord, lookup map[string]int64) (int64, error) {
	resolved, skipped := partitionResolvable(records, lookup)
	for _, code := range skipped {
		l.logger.Warn("[load] Skipping review for unknown source code: %s", code)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}

	var inserted int64
	for i := 0; i < len(resolved); i += factBatchSize {
		end := i + factBatchSize
		if end > len(resolved) {
			end = len(resolved)
		}
		n, err := insertFactBatch(tx, resolved[i:end], lookup)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	l.logger.Info("[load] Inserted %d fact rows (%d duplicates suppressed, %d skipped)",
		inserted, int64(len(resolved))-inserted, len(skipped))
	return inserted, nil
}

func insertFactBatch(tx *sql.Tx, batch []*models.FactRecord, lookup map[string]int64) (int64, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*7)

	for idx, r := range batch {
		base := idx * 7
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		valueArgs = append(valueArgs,
			lookup[r.SourceCode], r.Review, r.Rating, r.Date,
			r.SentimentLabel, r.SentimentScore, r.IdentifiedTheme)
	}

	query := fmt.Sprintf(`
		INSERT INTO review_fact (
			source_id, review_text, rating, review_date,
			sentiment_label, sentiment_score, identified_theme
		)
		VALUES %s
		ON CONFLICT DO NOTHING
	`, strings.Join(valueStrings, ","))

	res, err := tx.Exec(query, valueArgs...)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (l *PostgresLoader) Close() error {
	return l.db.Close()
}

// distinctSourceCodes returns the batch's source codes in first-appearance
// order.
func distinctSourceCodes(records []*models.FactRecord) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, r := range records {
		if _, ok := seen[r.SourceCode]; ok {
			continue
		}
		seen[r.SourceCode] = struct{}{}
		codes = append(codes, r.SourceCode)
	}
	return codes
}

// partitionResolvable splits the batch into records whose source code
// resolves through the lookup and the codes that do not.
func partitionResolvable(records []*models.FactRecord, lookup map[string]int64) ([]*models.FactRecord, []string) {
	resolved := make([]*models.FactRecord, 0, len(records))
	var skipped []string
	for _, r := range records {
		if _, ok := lookup[r.SourceCode]; !ok {
			skipped = append(skipped, r.SourceCode)
			continue
		}
		resolved = append(resolved, r)
	}
	return resolved, skipped
}
