// Package youtube enriches visited items with catalog metadata from the
// YouTube Data API v3.
package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
)

// Parts requested for every lookup.
var videoParts = []string{"snippet", "id", "statistics", "contentDetails", "topicDetails"}

const (
	defaultQPS     = 5
	defaultTimeout = 10 * time.Second
)

// Config captures the enricher settings.
type Config struct {
	// APIKey is the Data API credential. Without it the enricher returns
	// minimal records and never touches the network.
	APIKey string
	// Endpoint overrides the API base URL.
	Endpoint string
	// QPS bounds lookups per second.
	QPS float64
	// Timeout bounds a single lookup.
	Timeout time.Duration
}

// Enricher implements crawler.Enricher on top of the Data API client.
type Enricher struct {
	svc     *yt.Service
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

var _ crawler.Enricher = (*Enricher)(nil)

// New builds an Enricher. An empty APIKey yields a disabled enricher.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Enricher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Enricher{logger: logger}
	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Info("no youtube api key configured, records will not be enriched")
		return e, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	qps := cfg.QPS
	if qps <= 0 {
		qps = defaultQPS
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	e.svc = svc
	e.limiter = rate.NewLimiter(rate.Limit(qps), 1)
	e.timeout = timeout
	return e, nil
}

// Enabled reports whether lookups hit the network.
func (e *Enricher) Enabled() bool {
	return e.svc != nil
}

// Enrich looks up id and maps the result into a VideoRecord. Every failure
// (missing credential or id, transport error, unknown item) degrades to
// crawler.MinimalRecord.
func (e *Enricher) Enrich(ctx context.Context, id string, order int) crawler.VideoRecord {
	if e.svc == nil || id == "" {
		return crawler.MinimalRecord(id, order)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		e.logger.Warn("enrichment rate limiter aborted", zap.String("video_id", id), zap.Error(err))
		return crawler.MinimalRecord(id, order)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.svc.Videos.List(videoParts).Id(id).Context(ctx).Do()
	if err != nil {
		e.logger.Warn("video lookup failed", zap.String("video_id", id), zap.Error(err))
		return crawler.MinimalRecord(id, order)
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		e.logger.Debug("video not found in catalog", zap.String("video_id", id))
		return crawler.MinimalRecord(id, order)
	}
	return recordFromVideo(resp.Items[0], id, order)
}

var lineBreaks = regexp.MustCompile(`[\r\n]+`)

// recordFromVideo maps one catalog item into a record. It tolerates any
// facet being absent.
func recordFromVideo(v *yt.Video, id string, order int) crawler.VideoRecord {
	r := crawler.MinimalRecord(id, order)
	if v.Id != "" {
		r.ID = v.Id
	}
	r.Kind = v.Kind

	if s := v.Snippet; s != nil {
		r.Title = s.Title
		r.ChannelTitle = s.ChannelTitle
		r.ChannelID = s.ChannelId
		r.Description = strings.TrimSpace(lineBreaks.ReplaceAllString(s.Description, " "))
		r.PublishedAt = s.PublishedAt
		r.CategoryID = s.CategoryId
		r.LiveBroadcastContent = s.LiveBroadcastContent
		r.DefaultLanguage = s.DefaultLanguage
		r.DefaultAudioLanguage = s.DefaultAudioLanguage
		if s.Thumbnails != nil && s.Thumbnails.Default != nil {
			r.ThumbnailURL = s.Thumbnails.Default.Url
		}
	}
	if st := v.Statistics; st != nil {
		r.ViewCount = uint64Ptr(st.ViewCount)
		r.LikeCount = uint64Ptr(st.LikeCount)
		r.FavoriteCount = uint64Ptr(st.FavoriteCount)
		r.CommentCount = uint64Ptr(st.CommentCount)
	}
	if cd := v.ContentDetails; cd != nil {
		licensed := cd.LicensedContent
		r.LicensedContent = &licensed
	}
	if td := v.TopicDetails; td != nil && len(td.TopicCategories) > 0 {
		r.TopicCategories = append([]string(nil), td.TopicCategories...)
	}
	return r
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}
