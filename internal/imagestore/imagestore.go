// Package imagestore downloads article images and stores each distinct byte
// sequence once, under a path derived from its sha256 digest.
package imagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"content_spider/internal/logger"
	"content_spider/internal/models"
	"content_spider/internal/utils"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const (
	imagesSubdir     = "images"
	MaxDimension     = 1920
	jpegQuality      = 85
	maxImageSize     = 20 << 20
	maxPixels        = 50_000_000
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "content_spider"
)

// Formats the standard decoders understand. A response claiming one of these
// that fails to decode is treated as corrupt; any other image type is kept
// as-is.
var decodable = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var verbatimExt = map[string]string{
	"image/svg+xml":            ".svg",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/bmp":                ".bmp",
	"image/tiff":               ".tiff",
	"image/avif":               ".avif",
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// Wait, when set, is called before every download so image requests
	// share the per-host pacing of page fetches.
	Wait func(ctx context.Context, rawURL string) error
}

type Store struct {
	root      string
	client    *http.Client
	timeout   time.Duration
	userAgent string
	wait      func(ctx context.Context, rawURL string) error
	log       logger.Logger

	group singleflight.Group

	mu     sync.Mutex
	byURL  map[string]*models.ImageAsset
	byHash map[string]*models.ImageAsset

	downloads atomic.Int64
}

// New prepares an image store rooted at root. Assets land in root/images.
func New(root string, opts Options, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, imagesSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Store{
		root:      root,
		client:    &http.Client{},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		wait:      opts.Wait,
		log:       log,
		byURL:     make(map[string]*models.ImageAsset),
		byHash:    make(map[string]*models.ImageAsset),
	}, nil
}

// Downloads reports how many image bodies were actually fetched over the
// network.
func (s *Store) Downloads() int {
	return int(s.downloads.Load())
}

// Fetch resolves ref against pageURL and returns the stored asset, or nil
// when the image is unusable. Failures are logged, never returned.
func (s *Store) Fetch(ctx context.Context, ref models.ImageRef, pageURL string) (*models.ImageAsset, error) {
	src, err := utils.ResolveURL(pageURL, ref.SourceURL)
	if err != nil {
		return nil, nil
	}
	key := utils.ComputeContentHash(src)

	if asset, ok := s.cached(key); ok {
		return clone(asset), nil
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		if asset, ok := s.cached(key); ok {
			return asset, nil
		}
		asset := s.download(ctx, src)
		s.mu.Lock()
		s.byURL[key] = asset
		s.mu.Unlock()
		return asset, nil
	})
	return clone(v.(*models.ImageAsset)), nil
}

// cached reports whether src was already attempted this run. A nil asset
// records a failed attempt.
func (s *Store) cached(key string) (*models.ImageAsset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.byURL[key]
	return asset, ok
}

func (s *Store) download(ctx context.Context, src string) *models.ImageAsset {
	log := s.log.With(logger.String("image", src))

	if s.wait != nil {
		if err := s.wait(ctx, src); err != nil {
			log.Debug("image wait aborted", logger.Error(err))
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		log.Warn("bad image request", logger.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Warn("image download failed", logger.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug("image skipped", logger.Int("status", resp.StatusCode))
		return nil
	}
	contentType := mediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		log.Debug("not an image", logger.String("content_type", contentType))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		log.Warn("image read failed", logger.Error(err))
		return nil
	}
	s.downloads.Add(1)

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if asset := s.lookupHash(hash); asset != nil {
		return asset
	}

	out, ext, width, height, err := process(data, contentType)
	if err != nil {
		log.Warn("corrupt image", logger.Error(err))
		return nil
	}

	asset, err := s.persist(hash, ext, out, width, height)
	if err != nil {
		log.Error("image write failed", logger.Error(err))
		return nil
	}
	return asset
}

func (s *Store) lookupHash(hash string) *models.ImageAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byHash[hash]
}

// persist writes data unless an asset with the same hash already exists, in
// which case the existing asset is returned and nothing is written.
func (s *Store) persist(hash, ext string, data []byte, width, height int) (*models.ImageAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if asset, ok := s.byHash[hash]; ok {
		return asset, nil
	}

	rel := path.Join(imagesSubdir, hash[:2], hash+ext)
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	asset := &models.ImageAsset{
		ContentHash:  hash,
		RelativePath: rel,
		Width:        width,
		Height:       height,
	}
	s.byHash[hash] = asset
	return asset, nil
}

// process returns the bytes to store, their extension and pixel size.
// Images larger than MaxDimension on either side are scaled down and
// re-encoded as JPEG.
func process(data []byte, contentType string) ([]byte, string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if decodable[contentType] {
			return nil, "", 0, 0, fmt.Errorf("decode %s: %w", contentType, err)
		}
		return data, extFor(contentType), 0, 0, nil
	}

	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", 0, 0, fmt.Errorf("image of %dx%d exceeds the pixel budget", cfg.Width, cfg.Height)
	}

	if cfg.Width <= MaxDimension && cfg.Height <= MaxDimension {
		if format == "jpeg" {
			return data, ".jpg", cfg.Width, cfg.Height, nil
		}
		return data, "." + format, cfg.Width, cfg.Height, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("decode image: %w", err)
	}

	w, h := fit(cfg.Width, cfg.Height, MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", 0, 0, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), ".jpg", w, h, nil
}

// fit scales w×h to fit within limit×limit, keeping the aspect ratio.
func fit(w, h, limit int) (int, int) {
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

func extFor(contentType string) string {
	if ext, ok := verbatimExt[contentType]; ok {
		return ext
	}
	return ".img"
}

func clone(asset *models.ImageAsset) *models.ImageAsset {
	if asset == nil {
		return nil
	}
	c := *asset
	return &c
}
