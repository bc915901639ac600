// Package extractor turns fetched documents into draft content records.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"content_spider/internal/models"
	"content_spider/internal/textnorm"
	"content_spider/internal/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// MinParagraphLength drops captions, bylines and other short boilerplate.
const MinParagraphLength = 20

var errEmptyDocument = errors.New("empty document")

// ParseError marks a page that could not be turned into a record. The page
// is skipped; the batch continues.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Link struct {
	URL  string
	Text string
}

// Page is everything extracted from one document, before images are
// downloaded and the record is assembled.
type Page struct {
	URL             string
	Title           string
	MetaDescription string
	MetaKeywords    string
	OGTitle         string
	OGDescription   string
	OGImage         string
	Headings        []models.Heading
	Paragraphs      []string
	Images          []models.ImageRef
	Links           []Link
}

func Extract(res *models.FetchResult) (*Page, error) {
	if len(bytes.TrimSpace(res.Body)) == 0 {
		return nil, &ParseError{URL: res.URL, Err: errEmptyDocument}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, &ParseError{URL: res.URL, Err: err}
	}

	page := &Page{URL: res.URL}
	page.Title = textnorm.Clean(doc.Find("title").First().Text())
	extractMeta(doc, page)

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := textnorm.Clean(s.Text())
		if text == "" {
			return
		}
		level := int(goquery.NodeName(s)[1] - '0')
		page.Headings = append(page.Headings, models.Heading{Level: level, Text: text})
	})

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := paragraph(s.Text()); text != "" {
			page.Paragraphs = append(page.Paragraphs, text)
		}
	})
	if len(page.Paragraphs) == 0 {
		page.Paragraphs = readableParagraphs(res)
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := imageSource(s)
		if src == "" {
			return
		}
		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		page.Images = append(page.Images, models.ImageRef{
			SourceURL: src,
			AltText:   textnorm.Clean(alt),
			TitleText: textnorm.Clean(title),
		})
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := textnorm.Clean(s.Text())
		if strings.TrimSpace(href) == "" || text == "" {
			return
		}
		if abs, err := utils.ResolveURL(res.URL, href); err == nil {
			href = abs
		}
		page.Links = append(page.Links, Link{URL: href, Text: text})
	})

	return page, nil
}

func extractMeta(doc *goquery.Document, page *Page) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		name, _ := s.Attr("name")
		property, _ := s.Attr("property")

		switch strings.ToLower(strings.TrimSpace(name)) {
		case "description":
			page.MetaDescription = textnorm.Clean(content)
		case "keywords":
			page.MetaKeywords = textnorm.Clean(content)
		}
		switch strings.ToLower(strings.TrimSpace(property)) {
		case "og:title":
			page.OGTitle = textnorm.Clean(content)
		case "og:description":
			page.OGDescription = textnorm.Clean(content)
		case "og:image":
			page.OGImage = strings.TrimSpace(content)
		}
	})
}

// imageSource prefers lazy-load attributes over the eager src.
func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func paragraph(raw string) string {
	text := textnorm.Clean(raw)
	if textnorm.Len(text) <= MinParagraphLength {
		return ""
	}
	return text
}

// readableParagraphs runs readability over pages without usable <p> markup
// and splits the article text into lines, applying the same filter.
func readableParagraphs(res *models.FetchResult) []string {
	pageURL, err := url.Parse(res.URL)
	if err != nil {
		return nil
	}
	article, err := readability.FromReader(bytes.NewReader(res.Body), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := paragraph(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	if len(out) > 0 {
		return out
	}

	doc.Find("br").ReplaceWithHtml("\n")
	for _, line := range strings.Split(doc.Text(), "\n") {
		if text := paragraph(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}
