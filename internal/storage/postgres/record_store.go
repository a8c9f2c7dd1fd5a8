// Package postgres mirrors crawl output into Postgres.
package postgres

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultRecordTable is used when no table is configured.
const DefaultRecordTable = "autoplay_records"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Connect opens a pool for cfg.DSN.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// RecordStore writes one row per persisted VideoRecord. It implements
// crawler.RecordSink.
type RecordStore struct {
	pool  execCloser
	table string
}

var _ crawler.RecordSink = (*RecordStore)(nil)

// NewRecordStoreWithPool constructs a store from an existing pool.
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultRecordTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id uuid NOT NULL,
	start_id text NOT NULL,
	ord integer NOT NULL,
	video_id text NOT NULL,
	title text NOT NULL DEFAULT '',
	kind text,
	channel text,
	channel_id text,
	description text,
	published_at text,
	category_id text,
	live_broadcast_content text,
	default_language text,
	default_audio_language text,
	thumbnail_url text,
	view_count bigint,
	like_count bigint,
	favorite_count bigint,
	comment_count bigint,
	licensed_content boolean,
	topic_categories text[],
	inserted_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, ord)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Consume inserts record. Re-delivery of the same ordinal is ignored.
func (s *RecordStore) Consume(ctx context.Context, session crawler.SessionRef, record crawler.VideoRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	start_id,
	ord,
	video_id,
	title,
	kind,
	channel,
	channel_id,
	description,
	published_at,
	category_id,
	live_broadcast_content,
	default_language,
	default_audio_language,
	thumbnail_url,
	view_count,
	like_count,
	favorite_count,
	comment_count,
	licensed_content,
	topic_categories
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)
ON CONFLICT (session_id, ord) DO NOTHING`, s.table)

	args := []any{
		uuid.UUID(session.ID),
		session.StartID,
		record.Order,
		record.ID,
		record.Title,
		nullString(record.Kind),
		nullString(record.ChannelTitle),
		nullString(record.ChannelID),
		nullString(record.Description),
		nullString(record.PublishedAt),
		nullString(record.CategoryID),
		nullString(record.LiveBroadcastContent),
		nullString(record.DefaultLanguage),
		nullString(record.DefaultAudioLanguage),
		nullString(record.ThumbnailURL),
		nullCount(record.ViewCount),
		nullCount(record.LikeCount),
		nullCount(record.FavoriteCount),
		nullCount(record.CommentCount),
		record.LicensedContent,
		record.TopicCategories,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert record %d: %w", record.Order, err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullCount converts to bigint. Counts beyond int64 are clamped.
func nullCount(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	if *v > math.MaxInt64 {
		n := int64(math.MaxInt64)
		return &n
	}
	n := int64(*v) // #nosec G115 -- bounded above.
	return &n
}
