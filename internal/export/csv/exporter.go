// Package csv converts session record files into flat CSV tables.
package csv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/storage/local"
)

// Row is one CSV line. Absent optional values are empty cells.
type Row struct {
	Order                int    `csv:"order"`
	ID                   string `csv:"id"`
	Title                string `csv:"title"`
	Kind                 string `csv:"kind"`
	Channel              string `csv:"channel"`
	ChannelID            string `csv:"channelId"`
	Description          string `csv:"description"`
	PublishedAt          string `csv:"publishedAt"`
	CategoryID           string `csv:"categoryId"`
	LiveBroadcastContent string `csv:"liveBroadcastContent"`
	DefaultLanguage      string `csv:"defaultLanguage"`
	DefaultAudioLanguage string `csv:"defaultAudioLanguage"`
	ThumbnailURL         string `csv:"thumbnailUrl"`
	ViewCount            string `csv:"viewCount"`
	LikeCount            string `csv:"likeCount"`
	FavoriteCount        string `csv:"favoriteCount"`
	CommentCount         string `csv:"commentCount"`
	LicensedContent      string `csv:"licensedContent"`
	TopicCategories      string `csv:"topicCategories"`
}

// RowFromRecord flattens record. Topic categories are joined with ";".
func RowFromRecord(r crawler.VideoRecord) Row {
	return Row{
		Order:                r.Order,
		ID:                   r.ID,
		Title:                r.Title,
		Kind:                 r.Kind,
		Channel:              r.ChannelTitle,
		ChannelID:            r.ChannelID,
		Description:          r.Description,
		PublishedAt:          r.PublishedAt,
		CategoryID:           r.CategoryID,
		LiveBroadcastContent: r.LiveBroadcastContent,
		DefaultLanguage:      r.DefaultLanguage,
		DefaultAudioLanguage: r.DefaultAudioLanguage,
		ThumbnailURL:         r.ThumbnailURL,
		ViewCount:            count(r.ViewCount),
		LikeCount:            count(r.LikeCount),
		FavoriteCount:        count(r.FavoriteCount),
		CommentCount:         count(r.CommentCount),
		LicensedContent:      flag(r.LicensedContent),
		TopicCategories:      strings.Join(r.TopicCategories, ";"),
	}
}

func count(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

func flag(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

// Exporter implements crawler.Exporter.
type Exporter struct {
	logger *zap.Logger
}

var _ crawler.Exporter = (*Exporter)(nil)

// New returns an Exporter.
func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger}
}

// ErrExists is returned by Export when the CSV is already present and force
// is false.
var ErrExists = errors.New("csv already exists")

// Export converts <sessionDir>/output.json into <sessionDir>/output.csv.
func (e *Exporter) Export(ctx context.Context, sessionDir string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in := filepath.Join(sessionDir, local.OutputFile)
	out := filepath.Join(sessionDir, local.CSVFile)
	if !force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s: %w", out, ErrExists)
		}
	}

	records, err := local.ReadRecords(in)
	if err != nil {
		return err
	}
	rows := make([]*Row, 0, len(records))
	for _, r := range records {
		row := RowFromRecord(r)
		rows = append(rows, &row)
	}
	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	e.logger.Info("converted session to csv", zap.String("input", in), zap.Int("rows", len(rows)))
	return nil
}

// ExportAll converts every <baseDir>/*/output.json whose path contains id
// (all sessions when id is empty). Existing CSVs are skipped unless force is
// set. It returns the number of files written.
func (e *Exporter) ExportAll(ctx context.Context, baseDir, id string, force bool) (int, error) {
	matches, err := filepath.Glob(filepath.Join(baseDir, "*", local.OutputFile))
	if err != nil {
		return 0, fmt.Errorf("glob sessions: %w", err)
	}
	sort.Strings(matches)

	var written int
	for _, f := range matches {
		if id != "" && !strings.Contains(f, id) {
			continue
		}
		err := e.Export(ctx, filepath.Dir(f), force)
		switch {
		case errors.Is(err, ErrExists):
			e.logger.Info("csv exists, skipping", zap.String("session", filepath.Dir(f)))
		case err != nil:
			return written, err
		default:
			written++
		}
	}
	return written, nil
}
