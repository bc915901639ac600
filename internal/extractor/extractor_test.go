package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"content_spider/internal/logger"
	"content_spider/internal/models"
	"content_spider/internal/slug"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!doctype html>
<html lang="fa">
<head>
  <title>  نژاد اسب   عرب </title>
  <meta name="Description" content="معرفی نژاد اسب عرب">
  <meta name="keywords" content="اسب, نژاد">
  <meta property="og:title" content="اسب عرب">
  <meta property="og:image" content="https://cdn.example.com/og.jpg">
</head>
<body>
  <h1>نژاد اسب عرب</h1>
  <p>کوتاه</p>
  <h2>تاریخچه</h2>
  <h3>   </h3>
  <p>اسب عرب یکی از قدیمی‌ترین نژادهای اسب در جهان است.</p>
  <img src="/placeholder.gif" data-src="/img/arab.jpg" alt="اسب عرب" title="عکس">
  <img src="/img/second.png">
  <img alt="no source">
  <p>تغذیه این اسب‌ها در مسابقات اهمیت زیادی دارد.</p>
  <a href="/related">مطلب مرتبط</a>
  <a href="/empty"> </a>
  <a href="">خالی</a>
</body>
</html>`

func fetchResult(url, body string) *models.FetchResult {
	return &models.FetchResult{URL: url, StatusCode: 200, FinalEncoding: "utf-8", Body: []byte(body)}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	page, err := Extract(fetchResult("https://example.com/articles/arabian", articleHTML))
	require.NoError(t, err)

	assert.Equal(t, "نژاد اسب عرب", page.Title)
	assert.Equal(t, "معرفی نژاد اسب عرب", page.MetaDescription)
	assert.Equal(t, "اسب, نژاد", page.MetaKeywords)
	assert.Equal(t, "اسب عرب", page.OGTitle)
	assert.Equal(t, "https://cdn.example.com/og.jpg", page.OGImage)

	assert.Equal(t, []models.Heading{
		{Level: 1, Text: "نژاد اسب عرب"},
		{Level: 2, Text: "تاریخچه"},
	}, page.Headings)

	require.Len(t, page.Paragraphs, 2)
	assert.True(t, strings.HasPrefix(page.Paragraphs[0], "اسب عرب یکی"))

	assert.Equal(t, []models.ImageRef{
		{SourceURL: "/img/arab.jpg", AltText: "اسب عرب", TitleText: "عکس"},
		{SourceURL: "/img/second.png"},
	}, page.Images)

	assert.Equal(t, []Link{{URL: "https://example.com/related", Text: "مطلب مرتبط"}}, page.Links)
}

func TestExtract_EmptyDocumentIsParseError(t *testing.T) {
	t.Parallel()

	_, err := Extract(fetchResult("https://example.com/x", "  \n "))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "https://example.com/x", perr.URL)
}

func TestAssemble_TitleFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page Page
		want string
	}{
		{
			name: "meta title wins",
			page: Page{Title: "Horse Care", Headings: []models.Heading{{Level: 1, Text: "Heading"}}},
			want: "Horse Care",
		},
		{
			name: "first heading when no title element",
			page: Page{Headings: []models.Heading{{Level: 2, Text: "Second level first"}, {Level: 1, Text: "Later"}}},
			want: "Second level first",
		},
		{
			name: "placeholder when nothing",
			page: Page{},
			want: UntitledTitle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.page.URL = "https://example.com/a"
			rec, err := Assemble(&tt.page, nil, time.Time{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Title)
			assert.NotEmpty(t, rec.Slug)
		})
	}
}

func TestAssemble_Excerpt(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("ا", 250)
	rec, err := Assemble(&Page{URL: "https://example.com/a", Title: "Horse", Paragraphs: []string{short}}, nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, short, rec.Excerpt)

	long := strings.Repeat("ب", 400)
	rec, err = Assemble(&Page{URL: "https://example.com/a", Title: "Horse", Paragraphs: []string{long}}, nil, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ب", 300)+"...", rec.Excerpt)

	exact := strings.Repeat("c", 300)
	assert.Equal(t, exact, Excerpt(exact))
}

func TestAssemble_Fields(t *testing.T) {
	t.Parallel()

	page := &Page{
		URL:        "https://www.example.com/articles/1?ref=home",
		Title:      "Best Horse Breeds",
		Paragraphs: []string{"first paragraph text", "second paragraph text"},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec, err := Assemble(page, nil, at)
	require.NoError(t, err)

	assert.Len(t, rec.ID, 12)
	assert.Equal(t, "best-horse-breeds", rec.Slug)
	assert.Equal(t, "first paragraph text second paragraph text", rec.Content)
	assert.Equal(t, "www.example.com", rec.Source)
	assert.Equal(t, at, rec.ScrapedAt)
	assert.NotNil(t, rec.Headings)
	assert.NotNil(t, rec.Images)
}

func TestAssemble_EmptySlugKeepsRecord(t *testing.T) {
	t.Parallel()

	rec, err := Assemble(&Page{URL: "https://example.com/a", Title: "!!! ???"}, nil, time.Time{})
	require.ErrorIs(t, err, slug.ErrEmptySlug)
	require.NotNil(t, rec)
	assert.Empty(t, rec.Slug)
	assert.Equal(t, "!!! ???", rec.Title)
}

func TestExtractAssemble_Idempotent(t *testing.T) {
	t.Parallel()

	res := fetchResult("https://example.com/articles/arabian", articleHTML)
	build := func() *models.ContentRecord {
		page, err := Extract(res)
		require.NoError(t, err)
		rec, err := Assemble(page, nil, time.Time{})
		require.NoError(t, err)
		return rec
	}

	first, second := build(), build()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Slug, second.Slug)
	assert.Equal(t, first, second)
}

type fakeImages struct {
	calls []string
	fail  map[string]bool
	err   map[string]bool
}

func (f *fakeImages) Fetch(_ context.Context, ref models.ImageRef, _ string) (*models.ImageAsset, error) {
	f.calls = append(f.calls, ref.SourceURL)
	if f.err[ref.SourceURL] {
		return nil, errors.New("disk full")
	}
	if f.fail[ref.SourceURL] {
		return nil, nil
	}
	return &models.ImageAsset{ContentHash: "h-" + ref.SourceURL, RelativePath: "images/" + ref.SourceURL}, nil
}

func TestBuild_ImagesInOrderAndCapped(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><head><title>Horse Breeds Guide</title></head><body>")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, `<img src="/%d.jpg" alt="alt %d">`, i, i)
	}
	b.WriteString("<p>long enough paragraph about horses</p></body></html>")

	images := &fakeImages{fail: map[string]bool{"/1.jpg": true}, err: map[string]bool{"/2.jpg": true}}
	builder := NewBuilder(images, 10, logger.NewNop())

	rec, err := builder.Build(context.Background(), fetchResult("https://example.com/guide", b.String()))
	require.NoError(t, err)

	assert.Len(t, images.calls, 10)
	assert.Equal(t, "/0.jpg", images.calls[0])
	assert.Equal(t, "/9.jpg", images.calls[9])

	require.Len(t, rec.Images, 8)
	assert.Equal(t, "images//0.jpg", rec.FeaturedImage())
	assert.Equal(t, "alt 0", rec.Images[0].AltText)
	assert.Equal(t, "images//3.jpg", rec.Images[1].RelativePath)
}

func TestBuild_ParseErrorHasNoRecord(t *testing.T) {
	t.Parallel()

	rec, err := NewBuilder(nil, 0, logger.NewNop()).Build(context.Background(), fetchResult("https://example.com/x", ""))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
	assert.Nil(t, rec)
}
