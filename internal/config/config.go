/**
 * Configuration for the juxtapose worker
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Default comparison selection
	Engine      string
	Granularity string

	// Tesseract configuration
	TesseractPath     string
	TesseractBackend  string // "cli" runs the binary and parses hOCR, "library" links libtesseract
	TesseractLanguage string
	TessdataPrefix    string

	// EasyOCR configuration
	PythonPath       string
	EasyOCRLanguages []string
	EasyOCRGPU       bool

	// Extraction and collage
	OutputDir         string
	ExtractionTimeout time.Duration
	MinConfidence     float64
	KeepBlankUnits    bool
	SeparatorWidth    int

	// Queue configuration
	RedisURL          string
	QueueName         string
	QueueBackend      string // "list" or "asynq"
	WorkerConcurrency int
	ProcessingTimeout time.Duration
	JobMaxRetries     int

	// Temporary directory for queued image payloads
	TempDir string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Engine:            getEnvOrDefault("OCR_ENGINE", "tesseract"),
		Granularity:       getEnvOrDefault("OCR_GRANULARITY", "word"),
		TesseractPath:     getEnvOrDefault("TESSERACT_PATH", ""),
		TesseractBackend:  getEnvOrDefault("TESSERACT_BACKEND", "cli"),
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		TessdataPrefix:    getEnvOrDefault("TESSDATA_PREFIX", ""),
		PythonPath:        getEnvOrDefault("PYTHON_PATH", ""),
		EasyOCRLanguages:  getEnvAsListOrDefault("EASYOCR_LANGUAGES", []string{"en"}),
		EasyOCRGPU:        getEnvAsBoolOrDefault("EASYOCR_GPU", false),
		OutputDir:         getEnvOrDefault("OUTPUT_DIR", "."),
		ExtractionTimeout: getEnvAsDurationOrDefault("EXTRACTION_TIMEOUT", 2*time.Minute),
		MinConfidence:     getEnvAsFloatOrDefault("MIN_CONFIDENCE", 0),
		KeepBlankUnits:    getEnvAsBoolOrDefault("KEEP_BLANK_UNITS", false),
		SeparatorWidth:    getEnvAsIntOrDefault("SEPARATOR_WIDTH", 10),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "juxtapose:jobs"),
		QueueBackend:      getEnvOrDefault("QUEUE_BACKEND", "list"),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		ProcessingTimeout: getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 5*time.Minute),
		JobMaxRetries:     getEnvAsIntOrDefault("JOB_MAX_RETRIES", 3),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.Engine {
	case "tesseract", "easyocr":
	default:
		return fmt.Errorf("OCR_ENGINE must be tesseract or easyocr, got %q", c.Engine)
	}

	if c.TesseractBackend != "cli" && c.TesseractBackend != "library" {
		return fmt.Errorf("TESSERACT_BACKEND must be cli or library, got %q", c.TesseractBackend)
	}

	if c.QueueBackend != "list" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be list or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency)
	}

	if c.JobMaxRetries < 0 || c.JobMaxRetries > 25 {
		return fmt.Errorf("JOB_MAX_RETRIES must be between 0 and 25, got %d", c.JobMaxRetries)
	}

	if c.SeparatorWidth < 0 || c.SeparatorWidth > 200 {
		return fmt.Errorf("SEPARATOR_WIDTH must be between 0 and 200, got %d", c.SeparatorWidth)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be between 0 and 1, got %v", c.MinConfidence)
	}

	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must be positive")
	}

	if len(c.EasyOCRLanguages) == 0 {
		return fmt.Errorf("EASYOCR_LANGUAGES must name at least one language")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma separated variable, dropping empty items
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
