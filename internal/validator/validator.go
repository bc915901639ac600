// Package validator is the quality gate records pass before leaving the
// pipeline. It does no I/O.
package validator

import (
	"strings"

	"content_spider/internal/config"
	"content_spider/internal/extractor"
	"content_spider/internal/models"
	"content_spider/internal/textnorm"
)

const (
	ReasonTitle   = "title invalid or too short"
	ReasonContent = "content invalid or too short"
	ReasonSlug    = "slug missing"
	ReasonURL     = "url missing"
)

type Validator struct {
	minTitle    int
	minContent  int
	maxContent  int
	minKeywords int
	keywords    []string
}

// New builds a validator from cfg; zero values fall back to the defaults.
func New(cfg config.ValidationConfig) *Validator {
	v := &Validator{
		minTitle:    cfg.MinTitleLength,
		minContent:  cfg.MinContentLength,
		maxContent:  cfg.MaxContentLength,
		minKeywords: cfg.MinContentKeywords,
	}
	if v.minTitle <= 0 {
		v.minTitle = config.DefaultMinTitleLength
	}
	if v.minContent <= 0 {
		v.minContent = config.DefaultMinContentLength
	}
	if v.maxContent <= 0 {
		v.maxContent = config.DefaultMaxContentLength
	}
	if v.minKeywords <= 0 {
		v.minKeywords = config.DefaultMinContentKeywords
	}

	keywords := cfg.RequiredKeywords
	if len(keywords) == 0 {
		keywords = config.DefaultRequiredKeywords
	}
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.ToLower(textnorm.Clean(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		v.keywords = append(v.keywords, kw)
	}
	return v
}

func (v *Validator) ValidateTitle(title string) bool {
	title = strings.ToLower(textnorm.Clean(title))
	if textnorm.Len(title) < v.minTitle {
		return false
	}
	return v.keywordHits(title) > 0
}

func (v *Validator) ValidateContent(content string) bool {
	n := textnorm.Len(content)
	if n < v.minContent || n > v.maxContent {
		return false
	}
	return v.keywordHits(strings.ToLower(textnorm.Clean(content))) >= v.minKeywords
}

// keywordHits counts distinct required keywords present in text.
func (v *Validator) keywordHits(text string) int {
	hits := 0
	for _, kw := range v.keywords {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// Validate reports every failed check, in a fixed order.
func (v *Validator) Validate(rec models.ContentRecord) models.ValidationVerdict {
	errs := []string{}
	if !v.ValidateTitle(rec.Title) {
		errs = append(errs, ReasonTitle)
	}
	if !v.ValidateContent(rec.Content) {
		errs = append(errs, ReasonContent)
	}
	if strings.TrimSpace(rec.Slug) == "" {
		errs = append(errs, ReasonSlug)
	}
	if strings.TrimSpace(rec.URL) == "" {
		errs = append(errs, ReasonURL)
	}
	return models.ValidationVerdict{
		Record:   rec,
		Accepted: len(errs) == 0,
		Errors:   errs,
	}
}

// Clean strips residual markup from content and excerpt, collapses their
// whitespace and caps the excerpt body at the excerpt length. A trailing
// "..." is not counted, so an assembled excerpt comes back unchanged.
func Clean(rec models.ContentRecord) models.ContentRecord {
	rec.Content = textnorm.CollapseWhitespace(textnorm.StripTags(rec.Content))

	excerpt := textnorm.CollapseWhitespace(textnorm.StripTags(rec.Excerpt))
	body := strings.TrimSuffix(excerpt, extractor.ExcerptSuffix)
	if head, cut := textnorm.Truncate(body, extractor.ExcerptLength); cut {
		excerpt = head + extractor.ExcerptSuffix
	}
	rec.Excerpt = excerpt
	return rec
}

// ValidateBatch cleans and validates every record. Quarantined records keep
// their reasons; nothing is dropped.
func (v *Validator) ValidateBatch(records []models.ContentRecord) ([]models.ContentRecord, []models.ValidationVerdict) {
	accepted := []models.ContentRecord{}
	quarantined := []models.ValidationVerdict{}
	for _, rec := range records {
		verdict := v.Validate(Clean(rec))
		if verdict.Accepted {
			accepted = append(accepted, verdict.Record)
		} else {
			quarantined = append(quarantined, verdict)
		}
	}
	return accepted, quarantined
}
