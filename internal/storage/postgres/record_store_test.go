package postgres

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/progress"
)

var (
	testSession   = uuid.MustParse("01928f3e-7c1a-7b2e-9f00-000000000001")
	testSessionID = [16]byte(testSession)
)

func ptr[T any](v T) *T { return &v }

func TestRecordStoreInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	rec := crawler.VideoRecord{
		Order:           3,
		ID:              "dQw4w9WgXcQ",
		Title:           "Never Gonna Give You Up",
		Kind:            "youtube#video",
		ChannelTitle:    "Rick Astley",
		ViewCount:       ptr(uint64(1500)),
		LicensedContent: ptr(true),
		TopicCategories: []string{"https://en.wikipedia.org/wiki/Music"},
	}

	mock.ExpectExec("INSERT INTO autoplay_records").
		WithArgs(
			testSession,
			"aRcUVhVlSHg",
			3,
			"dQw4w9WgXcQ",
			"Never Gonna Give You Up",
			ptr("youtube#video"),
			ptr("Rick Astley"),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			ptr(int64(1500)),
			(*int64)(nil),
			(*int64)(nil),
			(*int64)(nil),
			ptr(true),
			[]string{"https://en.wikipedia.org/wiki/Music"},
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Consume(context.Background(), crawler.SessionRef{ID: testSessionID, StartID: "aRcUVhVlSHg"}, rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoreErrors(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRecordStoreWithPool(mock, "records; DROP TABLE x")
	assert.Error(t, err)

	store, err := NewRecordStoreWithPool(mock, "mirror")
	require.NoError(t, err)

	err = store.Consume(context.Background(), crawler.SessionRef{}, crawler.VideoRecord{Order: 1})
	assert.Error(t, err, "id is required")

	mock.ExpectExec("INSERT INTO mirror").WillReturnError(errors.New("connection reset"))
	err = store.Consume(context.Background(), crawler.SessionRef{ID: testSessionID}, crawler.MinimalRecord("abcdefg", 1))
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS autoplay_records").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNullCount(t *testing.T) {
	t.Parallel()

	assert.Nil(t, nullCount(nil))
	assert.Equal(t, int64(7), *nullCount(ptr(uint64(7))))
	assert.Equal(t, int64(math.MaxInt64), *nullCount(ptr(uint64(math.MaxUint64))))
}

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSessionStoreWithPool(mock, "")
	require.NoError(t, err)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	url := "https://www.youtube.com/watch?v=aRcUVhVlSHg"

	mock.ExpectExec("INSERT INTO autoplay_sessions").
		WithArgs(testSession, "aRcUVhVlSHg", url, start, StatusRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE autoplay_sessions SET items").
		WithArgs(1, testSession).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE autoplay_sessions SET finished_at").
		WithArgs(end, StatusFailed, "fatal: no video player element found", testSession).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.Consume(context.Background(), []progress.Event{
		{SessionID: testSessionID, TS: start, Stage: progress.StageSessionStart, StartID: "aRcUVhVlSHg", URL: url},
		{SessionID: testSessionID, TS: start, Stage: progress.StageItemReady, StartID: "aRcUVhVlSHg", Order: 0},
		{SessionID: testSessionID, TS: end, Stage: progress.StageSessionError, Note: "fatal: no video player element found"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NoError(t, store.Close(context.Background()))
}

func TestSessionStoreDone(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSessionStoreWithPool(mock, "runs")
	require.NoError(t, err)

	end := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE runs SET finished_at").
		WithArgs(end, StatusSucceeded, testSession).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.Consume(context.Background(), []progress.Event{
		{SessionID: testSessionID, TS: end, Stage: progress.StageSessionDone},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = NewSessionStoreWithPool(mock, "bad-name")
	assert.Error(t, err)
}
