// Package export writes batch results as JSON and as a SQL staging script.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"content_spider/internal/models"
)

const (
	RecordsJSONFile    = "scraped_content.json"
	RecordsSQLFile     = "scraped_content.sql"
	QuarantineJSONFile = "quarantine.json"
	ValidatedJSONFile  = "scraped_content_validated.json"
)

// Placeholder ownership for staged posts; the importing side reassigns them.
const (
	defaultAuthorID   = 1
	defaultCategoryID = 1
)

// WriteJSON writes v as indented UTF-8 JSON without HTML escaping.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func ReadJSON(r io.Reader) ([]models.ContentRecord, error) {
	var records []models.ContentRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

func ReadJSONFile(path string) ([]models.ContentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(bufio.NewReader(f))
}

type SQLHeader struct {
	RunID       string
	GeneratedAt time.Time
}

// WriteSQL writes one blog_posts INSERT per record, each followed by the
// blog_post_images rows of that record. Image rows find their post by slug.
func WriteSQL(w io.Writer, records []models.ContentRecord, header SQLHeader) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "-- content_spider staging script")
	if header.RunID != "" {
		fmt.Fprintf(bw, "-- run: %s\n", header.RunID)
	}
	fmt.Fprintf(bw, "-- generated: %s\n", header.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "-- records: %d\n", len(records))

	for _, rec := range records {
		featured := "NULL"
		if img := rec.FeaturedImage(); img != "" {
			featured = quote(img)
		}

		fmt.Fprintf(bw, `
INSERT INTO blog_posts (
    title, slug, excerpt, content, featured_image,
    meta_description, meta_keywords, author_id, category_id,
    is_published, published_at, created_at
) VALUES (
    %s,
    %s,
    %s,
    %s,
    %s,
    %s,
    %s,
    %d,
    %d,
    true,
    NOW(),
    NOW()
);
`,
			quote(rec.Title), quote(rec.Slug), quote(rec.Excerpt), quote(rec.Content), featured,
			quote(rec.MetaDescription), quote(rec.MetaKeywords), defaultAuthorID, defaultCategoryID)

		for _, img := range rec.Images {
			fmt.Fprintf(bw,
				"INSERT INTO blog_post_images (post_id, image_url, alt_text, title)\nSELECT id, %s, %s, %s FROM blog_posts WHERE slug = %s;\n",
				quote(img.RelativePath), quote(img.AltText), quote(img.TitleText), quote(rec.Slug))
		}
	}

	return bw.Flush()
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// WriteArtifacts writes the accepted records as JSON and SQL and the
// quarantined verdicts as JSON into dataDir.
func WriteArtifacts(dataDir string, res *models.BatchResult) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	accepted := res.Accepted
	if accepted == nil {
		accepted = []models.ContentRecord{}
	}
	quarantined := res.Quarantined
	if quarantined == nil {
		quarantined = []models.ValidationVerdict{}
	}

	if err := WriteJSONFile(filepath.Join(dataDir, RecordsJSONFile), accepted); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dataDir, RecordsSQLFile), func(w io.Writer) error {
		return WriteSQL(w, accepted, SQLHeader{RunID: res.RunID, GeneratedAt: res.FinishedAt})
	}); err != nil {
		return err
	}
	return WriteJSONFile(filepath.Join(dataDir, QuarantineJSONFile), quarantined)
}

func WriteJSONFile(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteJSON(w, v)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
