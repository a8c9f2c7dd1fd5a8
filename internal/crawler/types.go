package crawler

import "time"

// VideoRecord is one entry per visited item. Order and ID are always set;
// Title is empty when enrichment is unavailable. Every other field is
// optional and omitted from JSON when the catalog did not provide it.
type VideoRecord struct {
	Order                int      `json:"order"`
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Kind                 string   `json:"kind,omitempty"`
	ThumbnailURL         string   `json:"thumbnailUrl,omitempty"`
	PublishedAt          string   `json:"publishedAt,omitempty"`
	ChannelID            string   `json:"channelId,omitempty"`
	Description          string   `json:"description,omitempty"`
	ChannelTitle         string   `json:"channel,omitempty"`
	CategoryID           string   `json:"categoryId,omitempty"`
	LiveBroadcastContent string   `json:"liveBroadcastContent,omitempty"`
	DefaultLanguage      string   `json:"defaultLanguage,omitempty"`
	DefaultAudioLanguage string   `json:"defaultAudioLanguage,omitempty"`
	ViewCount            *uint64  `json:"viewCount,omitempty"`
	LikeCount            *uint64  `json:"likeCount,omitempty"`
	FavoriteCount        *uint64  `json:"favoriteCount,omitempty"`
	CommentCount         *uint64  `json:"commentCount,omitempty"`
	LicensedContent      *bool    `json:"licensedContent,omitempty"`
	TopicCategories      []string `json:"topicCategories,omitempty"`
}

// MinimalRecord is the record used when enrichment is unavailable or fails.
func MinimalRecord(id string, order int) VideoRecord {
	return VideoRecord{Order: order, ID: id}
}

// Enriched reports whether the record carries catalog data beyond the minimum.
func (r VideoRecord) Enriched() bool {
	return r.Title != "" || r.ChannelID != "" || r.Kind != ""
}

// Settings is the immutable description of one crawl session. It is built
// once from configuration at startup and passed to the Engine by value.
type Settings struct {
	StartURL    string
	Iterations  int
	Screenshots bool
	Record      bool
	CSV         bool
	// SkipTimeout bounds each lookup of the skip-ad control.
	SkipTimeout time.Duration
	// MaxAdChecks caps how many times the ad indicator is re-read for one
	// item. Zero means unbounded.
	MaxAdChecks int
}

// Playback summarizes one pass of the readiness gate.
type Playback struct {
	AdChecks     int
	SkipsClicked int
	Waited       time.Duration
}
