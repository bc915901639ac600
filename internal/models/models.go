package models

import (
	"time"

	"content_spider/internal/config"
)

type CandidateURL struct {
	URL  string
	Site *config.SiteConfig
}

type FetchResult struct {
	URL           string
	StatusCode    int
	FinalEncoding string
	Body          []byte
	FetchedAt     time.Time
}

type ImageRef struct {
	SourceURL string
	AltText   string
	TitleText string
}

// ImageAsset is identified by ContentHash: one asset per distinct byte sequence.
type ImageAsset struct {
	ContentHash  string `json:"content_hash" bson:"content_hash"`
	RelativePath string `json:"path" bson:"path"`
	Width        int    `json:"width" bson:"width"`
	Height       int    `json:"height" bson:"height"`
}

// RecordImage is an asset as referenced by one record.
type RecordImage struct {
	ImageAsset `bson:",inline"`
	AltText    string `json:"alt" bson:"alt"`
	TitleText  string `json:"title" bson:"title"`
}

type Heading struct {
	Level int    `json:"level" bson:"level"`
	Text  string `json:"text" bson:"text"`
}

type ContentRecord struct {
	ID              string        `json:"id" bson:"record_id"`
	URL             string        `json:"url" bson:"url"`
	Slug            string        `json:"slug" bson:"slug"`
	Title           string        `json:"title" bson:"title"`
	MetaDescription string        `json:"meta_description" bson:"meta_description"`
	MetaKeywords    string        `json:"meta_keywords" bson:"meta_keywords"`
	OGTitle         string        `json:"og_title,omitempty" bson:"og_title,omitempty"`
	OGDescription   string        `json:"og_description,omitempty" bson:"og_description,omitempty"`
	OGImage         string        `json:"og_image,omitempty" bson:"og_image,omitempty"`
	Content         string        `json:"content" bson:"content"`
	Excerpt         string        `json:"excerpt" bson:"excerpt"`
	Headings        []Heading     `json:"headings" bson:"headings"`
	Images          []RecordImage `json:"images" bson:"images"`
	Source          string        `json:"source" bson:"source"`
	ScrapedAt       time.Time     `json:"scraped_at" bson:"scraped_at"`
}

// FeaturedImage is the path of the first image, or "" when the record has none.
func (r *ContentRecord) FeaturedImage() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].RelativePath
}

type ValidationVerdict struct {
	Record   ContentRecord `json:"record"`
	Accepted bool          `json:"accepted"`
	Errors   []string      `json:"validation_errors"`
}

type Stats struct {
	SitesProcessed   int  `json:"sites_processed"`
	Discovered       int  `json:"discovered"`
	Fetched          int  `json:"fetched"`
	FetchErrors      int  `json:"fetch_errors"`
	ParseErrors      int  `json:"parse_errors"`
	Duplicates       int  `json:"duplicates"`
	Accepted         int  `json:"accepted"`
	Quarantined      int  `json:"quarantined"`
	ImagesDownloaded int  `json:"images_downloaded"`
	Cancelled        bool `json:"cancelled"`
}

type BatchResult struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Accepted    []ContentRecord
	Quarantined []ValidationVerdict
	Stats       Stats
}
