package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir   string
	OutputDir string

	ProductsCSV  string
	SuppliersCSV string
	BuyersCSV    string
	UnitsCSV     string

	LearnedMappingsCSV string
	ConversionsCSV     string
	JournalDBPath      string

	MatchThreshold     float64
	AutoLearnThreshold float64
	SupplierThreshold  float64
	BuyerThreshold     float64
	ExistsThreshold    float64

	VisionBaseURL   string
	VisionAPIKey    string
	VisionModel     string
	VisionTimeoutMs int
	VisionRetries   int

	ERPBaseURL   string
	ERPLogin     string
	ERPPassword  string
	ERPStoreID   string
	ERPTimeoutMs int

	WatchDir         string
	WatchIntervalSec int
	WatchBatch       int
	WatchAutoExport  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	dataDir := getEnv("DATA_DIR", filepath.Join(cwd, "data"))

	cfg := Config{
		DataDir:   dataDir,
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ProductsCSV:  getEnv("PRODUCTS_CSV", filepath.Join(dataDir, "base_products.csv")),
		SuppliersCSV: getEnv("SUPPLIERS_CSV", filepath.Join(dataDir, "base_suppliers.csv")),
		BuyersCSV:    getEnv("BUYERS_CSV", filepath.Join(dataDir, "base_buyers.csv")),
		UnitsCSV:     getEnv("UNITS_CSV", filepath.Join(dataDir, "units.csv")),

		LearnedMappingsCSV: getEnv("LEARNED_MAPPINGS_CSV", filepath.Join(dataDir, "learned_mappings.csv")),
		ConversionsCSV:     getEnv("UNIT_CONVERSIONS_CSV", filepath.Join(dataDir, "unit_conversions.csv")),
		JournalDBPath:      getEnv("JOURNAL_DB_PATH", filepath.Join(dataDir, "journal.db")),

		MatchThreshold:     getEnvFloat("MATCH_THRESHOLD", 0.60),
		AutoLearnThreshold: getEnvFloat("AUTO_LEARN_THRESHOLD", 0.90),
		SupplierThreshold:  getEnvFloat("SUPPLIER_MATCH_THRESHOLD", 0.75),
		BuyerThreshold:     getEnvFloat("BUYER_MATCH_THRESHOLD", 0.75),
		ExistsThreshold:    getEnvFloat("EXISTS_THRESHOLD", 0.90),

		VisionBaseURL:   getEnv("VISION_API_BASE_URL", "https://api.openai.com/v1"),
		VisionAPIKey:    getEnv("VISION_API_KEY", ""),
		VisionModel:     getEnv("VISION_MODEL", "gpt-4o"),
		VisionTimeoutMs: getEnvInt("VISION_TIMEOUT_MS", 60000),
		VisionRetries:   getEnvInt("VISION_MAX_RETRIES", 3),

		ERPBaseURL:   getEnv("ERP_API_BASE_URL", ""),
		ERPLogin:     getEnv("ERP_LOGIN", ""),
		ERPPassword:  getEnv("ERP_PASSWORD", ""),
		ERPStoreID:   getEnv("ERP_STORE_ID", ""),
		ERPTimeoutMs: getEnvInt("ERP_TIMEOUT_MS", 15000),

		WatchDir:         getEnv("WATCH_DIR", filepath.Join(dataDir, "inbox")),
		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 30),
		WatchBatch:       getEnvInt("WATCH_BATCH", 10),
		WatchAutoExport:  getEnvBool("WATCH_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
