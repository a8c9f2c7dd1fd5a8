// Package local implements the session Result Store on the local filesystem.
//
// A session directory looks like:
//
//	<base>/<startId>/output.json
//	<base>/<startId>/output.csv          (export)
//	<base>/<startId>/recording.webm      (recording)
//	<base>/<startId>/screenshots/screenshot-00000.png
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// File names inside a session directory.
const (
	OutputFile     = "output.json"
	CSVFile        = "output.csv"
	RecordingFile  = "recording.webm"
	ScreenshotsDir = "screenshots"
)

// Config captures the parameters for the local result store.
type Config struct {
	// BaseDir is the root directory under which session directories are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ResultStore persists one session's records and screenshots. Append
// rewrites the whole file on every call, so output.json is always a
// complete JSON array on disk.
type ResultStore struct {
	baseDir string

	mu  sync.Mutex
	dir string
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// New creates a result store rooted at cfg.BaseDir, creating it if needed.
func New(cfg Config) (*ResultStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ResultStore{baseDir: cfg.BaseDir}, nil
}

// Initialize creates <base>/<sessionKey>/ with an empty record array and an
// empty screenshots directory. Re-initializing an existing session resets
// its record file.
func (s *ResultStore) Initialize(_ context.Context, sessionKey string) error {
	if strings.TrimSpace(sessionKey) == "" {
		return fmt.Errorf("session key is required")
	}
	dir := filepath.Join(s.baseDir, sessionKey)

	// Clean the path and verify it's within baseDir to prevent path traversal.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(dir), cleanBase+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}

	if err := os.MkdirAll(filepath.Join(dir, ScreenshotsDir), 0o750); err != nil {
		return fmt.Errorf("failed to create session directories: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, OutputFile), []byte("[]")); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", OutputFile, err)
	}

	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()
	return nil
}

// Append reads the full record array, appends record and rewrites the file.
func (s *ResultStore) Append(_ context.Context, record crawler.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return errors.New("result store not initialized")
	}

	path := filepath.Join(s.dir, OutputFile)
	records, err := ReadRecords(path)
	if err != nil {
		return err
	}
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", OutputFile, err)
	}
	return nil
}

// Records returns the records persisted so far for the current session. It
// returns an empty slice before Initialize.
func (s *ResultStore) Records(_ context.Context) ([]crawler.VideoRecord, error) {
	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()
	if dir == "" {
		return []crawler.VideoRecord{}, nil
	}
	return ReadRecords(filepath.Join(dir, OutputFile))
}

// SaveScreenshot writes png under screenshots/ named by its zero-padded order
// and returns the file path.
func (s *ResultStore) SaveScreenshot(_ context.Context, order int, png []byte) (string, error) {
	if order < 0 {
		return "", fmt.Errorf("order must be >= 0, got %d", order)
	}
	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()
	if dir == "" {
		return "", errors.New("result store not initialized")
	}

	path := filepath.Join(dir, ScreenshotsDir, ScreenshotName(order))
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// Dir returns the current session directory, or "" before Initialize.
func (s *ResultStore) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// RecordingPath returns where the session video is written.
func (s *ResultStore) RecordingPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, RecordingFile)
}

// ScreenshotName is the file name of the screenshot for order.
func ScreenshotName(order int) string {
	return fmt.Sprintf("screenshot-%05d.png", order)
}

// ReadRecords decodes a session's output.json.
func ReadRecords(path string) ([]crawler.VideoRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured output directory.
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	records := []crawler.VideoRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partially written array.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
