package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig ensures the built-in defaults are sane.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 64, cfg.MaxCacheItems)
	assert.Equal(t, 20, cfg.MaxFileSizeMB)
	assert.Equal(t, 100, cfg.MaxBatchSizeMB)
	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, 0.08, cfg.PDFHeaderRatio)
	assert.Equal(t, 10, cfg.OCRMaxImages)
	assert.Equal(t, 2, cfg.OCRWorkers)
	assert.GreaterOrEqual(t, cfg.MaxWorkers, 1)
	assert.NoError(t, cfg.validate())
}

// TestLoadConfigEnvOverrides ensures environment variables win over the
// defaults.
func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DOCGUARD_MAX_CACHE_ITEMS", "16")
	t.Setenv("DOCGUARD_OCR_WORKERS", "4")
	t.Setenv("DOCGUARD_PDF_HEADER_RATIO", "0.1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxCacheItems)
	assert.Equal(t, 4, cfg.OCRWorkers)
	assert.Equal(t, 0.1, cfg.PDFHeaderRatio)
	assert.Equal(t, 10, cfg.OCRMaxImages, "untouched values keep their defaults")
}

// TestLoadConfigInvalidEnv ensures malformed values surface as errors
// instead of being silently ignored.
func TestLoadConfigInvalidEnv(t *testing.T) {
	t.Setenv("DOCGUARD_MAX_CACHE_ITEMS", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCGUARD_MAX_CACHE_ITEMS")
}

// TestLoadConfigYAMLFile ensures the optional config file is applied before
// environment overrides.
func TestLoadConfigYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ocr_max_images: 3\nmax_files: 5\n"), 0o644))
	t.Setenv("DOCGUARD_CONFIG", path)
	t.Setenv("DOCGUARD_MAX_FILES", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.OCRMaxImages)
	assert.Equal(t, 7, cfg.MaxFiles, "environment wins over the file")
}

// TestValidateRejectsBadValues covers the validation bounds.
func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkers = 0
	assert.Error(t, cfg.validate())

	cfg = DefaultConfig()
	cfg.PDFHeaderRatio = 0.5
	assert.Error(t, cfg.validate())

	cfg = DefaultConfig()
	cfg.OCRRateLimit = -1
	assert.Error(t, cfg.validate())
}
