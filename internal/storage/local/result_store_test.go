// Package local_test tests the local filesystem result store.
package local_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingBaseDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "output")
		_, err := local.New(local.Config{BaseDir: base})
		require.NoError(t, err)
		assert.DirExists(t, base)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestResultStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) (*local.ResultStore, string) {
		t.Helper()
		base := t.TempDir()
		store, err := local.New(local.Config{BaseDir: base})
		require.NoError(t, err)
		return store, base
	}

	t.Run("InitializeWritesEmptyArray", func(t *testing.T) {
		store, base := newStore(t)
		require.NoError(t, store.Initialize(ctx, "aRcUVhVlSHg"))

		dir := filepath.Join(base, "aRcUVhVlSHg")
		assert.Equal(t, dir, store.Dir())
		assert.DirExists(t, filepath.Join(dir, local.ScreenshotsDir))
		data, err := os.ReadFile(filepath.Join(dir, local.OutputFile))
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data))
		assert.Equal(t, filepath.Join(dir, local.RecordingFile), store.RecordingPath())
	})

	t.Run("InitializeRejectsBadKeys", func(t *testing.T) {
		store, _ := newStore(t)
		assert.Error(t, store.Initialize(ctx, ""))
		assert.Error(t, store.Initialize(ctx, "../escape"))
		assert.Error(t, store.Initialize(ctx, "."))
	})

	t.Run("AppendBeforeInitialize", func(t *testing.T) {
		store, _ := newStore(t)
		err := store.Append(ctx, crawler.MinimalRecord("abcdefg", 0))
		assert.Error(t, err)
		assert.Empty(t, store.RecordingPath())

		records, err := store.Records(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("AppendRoundTrip", func(t *testing.T) {
		store, base := newStore(t)
		require.NoError(t, store.Initialize(ctx, "aRcUVhVlSHg"))

		views := uint64(42)
		licensed := true
		want := []crawler.VideoRecord{
			crawler.MinimalRecord("aRcUVhVlSHg", 0),
			{
				Order:           1,
				ID:              "dQw4w9WgXcQ",
				Title:           "Song",
				Kind:            "youtube#video",
				ViewCount:       &views,
				LicensedContent: &licensed,
				TopicCategories: []string{"https://en.wikipedia.org/wiki/Music"},
			},
			crawler.MinimalRecord("item0000002", 2),
		}
		for _, r := range want {
			require.NoError(t, store.Append(ctx, r))
		}

		got, err := store.Records(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// The file on disk is a valid array at every step and keeps the
		// minimal record's title key.
		data, err := os.ReadFile(filepath.Join(base, "aRcUVhVlSHg", local.OutputFile))
		require.NoError(t, err)
		var raw []map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		require.Len(t, raw, 3)
		assert.Equal(t, map[string]any{"order": float64(0), "id": "aRcUVhVlSHg", "title": ""}, raw[0])
	})

	t.Run("ReinitializeResets", func(t *testing.T) {
		store, _ := newStore(t)
		require.NoError(t, store.Initialize(ctx, "aRcUVhVlSHg"))
		require.NoError(t, store.Append(ctx, crawler.MinimalRecord("aRcUVhVlSHg", 0)))
		require.NoError(t, store.Initialize(ctx, "aRcUVhVlSHg"))

		got, err := store.Records(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SaveScreenshot", func(t *testing.T) {
		store, base := newStore(t)
		require.NoError(t, store.Initialize(ctx, "aRcUVhVlSHg"))

		path, err := store.SaveScreenshot(ctx, 3, []byte("png"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "aRcUVhVlSHg", local.ScreenshotsDir, "screenshot-00003.png"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "png", string(data))

		_, err = store.SaveScreenshot(ctx, -1, []byte("png"))
		assert.Error(t, err)
	})

	t.Run("ReadRecordsMalformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), local.OutputFile)
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := local.ReadRecords(path)
		assert.Error(t, err)
	})
}

func TestScreenshotName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "screenshot-00000.png", local.ScreenshotName(0))
	assert.Equal(t, "screenshot-00042.png", local.ScreenshotName(42))
	assert.Equal(t, "screenshot-123456.png", local.ScreenshotName(123456))
}
