package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Source identifies one of the apps reviews are collected for.
type Source struct {
	Code        string
	AppID       string
	DisplayName string
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	Sources          []Source
	ReviewsPerSource int
	ScrapeLang       string
	ScrapeCountry    string

	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int

	RawCSVPath       string
	ProcessedCSVPath string
	FinalCSVPath     string

	MinCleanRecords int
	MaxDataLossPct  float64

	ChromeBin string
}

// defaultSources lists the apps scraped when SOURCES is not set.
// Format per entry: code=playStoreAppID=display name
const defaultSources = "CBE=com.combanketh.mobilebanking=Commercial Bank of Ethiopia;" +
	"BOA=com.boa.boaMobileBanking=Bank of Abyssinia;" +
	"Dashen=com.dashen.dashensuperapp=Dashen Bank"

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "etl"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "etl123"),
		PostgresDB:       getEnv("POSTGRES_DB", "app_reviews"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Sources:          ParseSources(getEnv("SOURCES", defaultSources)),
		ReviewsPerSource: getEnvInt("REVIEWS_PER_SOURCE", 600),
		ScrapeLang:       getEnv("SCRAPE_LANG", "en"),
		ScrapeCountry:    getEnv("SCRAPE_COUNTRY", "et"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 2),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		RawCSVPath:       getEnv("RAW_CSV_PATH", "./data/raw/reviews_raw.csv"),
		ProcessedCSVPath: getEnv("PROCESSED_CSV_PATH", "./data/processed/reviews_processed.csv"),
		FinalCSVPath:     getEnv("FINAL_CSV_PATH", "./data/processed/reviews_final.csv"),

		MinCleanRecords: getEnvInt("MIN_CLEAN_RECORDS", 1200),
		MaxDataLossPct:  getEnvFloat("MAX_DATA_LOSS_PCT", 5.0),

		ChromeBin: getEnv("CHROME_BIN", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// SourceName resolves a source code to its display name. Unknown codes map
// to themselves so a record never loses its provenance.
func (c *Config) SourceName(code string) string {
	for _, s := range c.Sources {
		if s.Code == code {
			return s.DisplayName
		}
	}
	return code
}

// ParseSources parses a semicolon-separated list of code=appID=display name
// entries. Malformed entries are skipped.
func ParseSources(raw string) []Source {
	var sources []Source
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 3)
		if len(parts) != 3 {
			log.Printf("[config] Skipping malformed source entry: %q", entry)
			continue
		}
		sources = append(sources, Source{
			Code:        strings.TrimSpace(parts[0]),
			AppID:       strings.TrimSpace(parts[1]),
			DisplayName: strings.TrimSpace(parts[2]),
		})
	}
	return sources
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
