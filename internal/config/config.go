// Package config holds runtime configuration for the document pipeline,
// resolved from defaults, an optional YAML file, and environment variables.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures every tunable of the pipeline. Zero values are never used
// directly; start from DefaultConfig.
type Config struct {
	MaxCacheItems  int     `yaml:"max_cache_items"`  // per-worker result cache capacity
	MaxWorkers     int     `yaml:"max_workers"`      // batch parallelism ceiling
	MaxFileSizeMB  int     `yaml:"max_file_size_mb"` // per-file input limit
	MaxBatchSizeMB int     `yaml:"max_batch_size_mb"`
	MaxFiles       int     `yaml:"max_files"` // per-batch file count limit
	PDFHeaderRatio float64 `yaml:"pdf_header_ratio"` // page-height fraction clipped top and bottom
	OCRMaxImages   int     `yaml:"ocr_max_images"`   // engine call cap per document
	OCRWorkers     int     `yaml:"ocr_workers"`      // intra-document OCR concurrency
	OCRRateLimit   float64 `yaml:"ocr_rate_limit"`   // engine calls per second, 0 = unlimited
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxCacheItems:  64,
		MaxWorkers:     runtime.NumCPU(),
		MaxFileSizeMB:  20,
		MaxBatchSizeMB: 100,
		MaxFiles:       10,
		PDFHeaderRatio: 0.08,
		OCRMaxImages:   10,
		OCRWorkers:     2,
		OCRRateLimit:   0,
	}
}

// LoadConfig resolves the effective configuration: defaults, then the YAML
// file named by DOCGUARD_CONFIG if set, then DOCGUARD_* environment
// variables. A .env file in the working directory is honored if present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path := os.Getenv("DOCGUARD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var err error
	intVar(&cfg.MaxCacheItems, "DOCGUARD_MAX_CACHE_ITEMS", &err)
	intVar(&cfg.MaxWorkers, "DOCGUARD_MAX_WORKERS", &err)
	intVar(&cfg.MaxFileSizeMB, "DOCGUARD_MAX_FILE_SIZE_MB", &err)
	intVar(&cfg.MaxBatchSizeMB, "DOCGUARD_MAX_BATCH_SIZE_MB", &err)
	intVar(&cfg.MaxFiles, "DOCGUARD_MAX_FILES", &err)
	floatVar(&cfg.PDFHeaderRatio, "DOCGUARD_PDF_HEADER_RATIO", &err)
	intVar(&cfg.OCRMaxImages, "DOCGUARD_OCR_MAX_IMAGES", &err)
	intVar(&cfg.OCRWorkers, "DOCGUARD_OCR_WORKERS", &err)
	floatVar(&cfg.OCRRateLimit, "DOCGUARD_OCR_RATE_LIMIT", &err)
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.MaxWorkers < 1:
		return fmt.Errorf("max_workers must be at least 1, got %d", c.MaxWorkers)
	case c.OCRWorkers < 1:
		return fmt.Errorf("ocr_workers must be at least 1, got %d", c.OCRWorkers)
	case c.MaxCacheItems < 0:
		return fmt.Errorf("max_cache_items must not be negative, got %d", c.MaxCacheItems)
	case c.PDFHeaderRatio < 0 || c.PDFHeaderRatio >= 0.5:
		return fmt.Errorf("pdf_header_ratio must be in [0, 0.5), got %g", c.PDFHeaderRatio)
	case c.OCRMaxImages < 0:
		return fmt.Errorf("ocr_max_images must not be negative, got %d", c.OCRMaxImages)
	case c.OCRRateLimit < 0:
		return fmt.Errorf("ocr_rate_limit must not be negative, got %g", c.OCRRateLimit)
	}
	return nil
}

func intVar(dst *int, key string, err *error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || *err != nil {
		return
	}
	v, perr := strconv.Atoi(raw)
	if perr != nil {
		*err = fmt.Errorf("invalid %s: %q", key, raw)
		return
	}
	*dst = v
}

func floatVar(dst *float64, key string, err *error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" || *err != nil {
		return
	}
	v, perr := strconv.ParseFloat(raw, 64)
	if perr != nil {
		*err = fmt.Errorf("invalid %s: %q", key, raw)
		return
	}
	*dst = v
}
