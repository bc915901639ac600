package extractor

import (
	"context"
	"errors"
	"strings"
	"time"

	"content_spider/internal/logger"
	"content_spider/internal/models"
	"content_spider/internal/slug"
	"content_spider/internal/textnorm"
	"content_spider/internal/utils"
)

const (
	ExcerptLength    = 300
	ExcerptSuffix    = "..."
	UntitledTitle    = "بدون عنوان"
	idLength         = 12
	defaultMaxImages = 10
)

// ImageFetcher resolves an image reference to a stored asset; a nil asset
// means the image is skipped.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref models.ImageRef, pageURL string) (*models.ImageAsset, error)
}

// RecordID is the first 12 hex characters of the md5 of the URL.
func RecordID(rawURL string) string {
	return utils.ComputeContentHash(rawURL)[:idLength]
}

// Excerpt returns content itself when it is at most ExcerptLength
// characters, otherwise its first ExcerptLength characters plus "...".
func Excerpt(content string) string {
	head, cut := textnorm.Truncate(content, ExcerptLength)
	if !cut {
		return content
	}
	return head + ExcerptSuffix
}

// Assemble builds a draft record from an extracted page. When the title
// yields no slug the record is still returned, with an empty slug, together
// with slug.ErrEmptySlug.
func Assemble(page *Page, images []models.RecordImage, scrapedAt time.Time) (*models.ContentRecord, error) {
	title := page.Title
	if title == "" && len(page.Headings) > 0 {
		title = page.Headings[0].Text
	}
	if title == "" {
		title = UntitledTitle
	}

	content := strings.Join(page.Paragraphs, " ")
	headings := page.Headings
	if headings == nil {
		headings = []models.Heading{}
	}
	if images == nil {
		images = []models.RecordImage{}
	}

	rec := &models.ContentRecord{
		ID:              RecordID(page.URL),
		URL:             page.URL,
		Title:           title,
		MetaDescription: page.MetaDescription,
		MetaKeywords:    page.MetaKeywords,
		OGTitle:         page.OGTitle,
		OGDescription:   page.OGDescription,
		OGImage:         page.OGImage,
		Content:         content,
		Excerpt:         Excerpt(content),
		Headings:        headings,
		Images:          images,
		Source:          utils.Host(page.URL),
		ScrapedAt:       scrapedAt,
	}

	s, err := slug.Generate(title)
	if err != nil {
		return rec, err
	}
	rec.Slug = s
	return rec, nil
}

type Builder struct {
	images    ImageFetcher
	maxImages int
	log       logger.Logger
	now       func() time.Time
}

// NewBuilder returns a Builder downloading up to maxImages images per
// record. images may be nil, in which case records carry no images.
func NewBuilder(images ImageFetcher, maxImages int, log logger.Logger) *Builder {
	if maxImages <= 0 {
		maxImages = defaultMaxImages
	}
	return &Builder{
		images:    images,
		maxImages: maxImages,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Build extracts res, downloads its first images in document order and
// assembles the record. A *ParseError means there is no record;
// slug.ErrEmptySlug comes with a usable record.
func (b *Builder) Build(ctx context.Context, res *models.FetchResult) (*models.ContentRecord, error) {
	page, err := Extract(res)
	if err != nil {
		return nil, err
	}

	images := b.fetchImages(ctx, page)

	rec, err := Assemble(page, images, b.now())
	if err != nil && !errors.Is(err, slug.ErrEmptySlug) {
		return nil, err
	}
	return rec, err
}

func (b *Builder) fetchImages(ctx context.Context, page *Page) []models.RecordImage {
	out := []models.RecordImage{}
	if b.images == nil {
		return out
	}

	refs := page.Images
	if len(refs) > b.maxImages {
		refs = refs[:b.maxImages]
	}
	for _, ref := range refs {
		asset, err := b.images.Fetch(ctx, ref, page.URL)
		if err != nil {
			b.log.Warn("image store failure", logger.String("url", page.URL), logger.Error(err))
			continue
		}
		if asset == nil {
			continue
		}
		out = append(out, models.RecordImage{
			ImageAsset: *asset,
			AltText:    ref.AltText,
			TitleText:  ref.TitleText,
		})
	}
	return out
}
