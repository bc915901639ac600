package imagestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"content_spider/internal/frontier"
	"content_spider/internal/logger"
	"content_spider/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, x%h, color.RGBA{R: 200, G: 30, B: 90, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader returns a PNG signature and IHDR chunk declaring w×h RGBA pixels
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

type imageServer struct {
	*httptest.Server
	hits sync.Map
}

func (s *imageServer) count(path string) int {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int32).Load())
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()

	small := pngBytes(t, 40, 20)
	large := pngBytes(t, 3000, 1500)
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"/>`)

	s := &imageServer{}
	routes := map[string]func(w http.ResponseWriter){
		"/img/a.png": func(w http.ResponseWriter) { serve(w, "image/png", small) },
		"/img/b.png": func(w http.ResponseWriter) { serve(w, "image/png", small) },
		"/img/big.png": func(w http.ResponseWriter) {
			serve(w, "image/png", large)
		},
		"/img/logo.svg": func(w http.ResponseWriter) { serve(w, "image/svg+xml", svg) },
		"/img/huge.png": func(w http.ResponseWriter) {
			serve(w, "image/png", pngHeader(60000, 60000))
		},
		"/img/broken.jpg": func(w http.ResponseWriter) {
			serve(w, "image/jpeg", []byte("definitely not a jpeg"))
		},
		"/page.html": func(w http.ResponseWriter) {
			serve(w, "text/html; charset=utf-8", []byte("<html></html>"))
		},
	}

	mux := http.NewServeMux()
	for p, h := range routes {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
			v.(*atomic.Int32).Add(1)
			h(w)
		})
	}
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func serve(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(body)
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(root, Options{}, logger.NewNop())
	require.NoError(t, err)
	return s, root
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(filepath.Join(root, imagesSubdir), func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	require.NoError(t, err)
	return n
}

func TestFetch_StoresByContentHash(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, root := newStore(t)
	ctx := context.Background()

	asset, err := store.Fetch(ctx, models.ImageRef{SourceURL: "img/a.png"}, srv.URL+"/posts/1")
	require.NoError(t, err)
	require.NotNil(t, asset)

	assert.Len(t, asset.ContentHash, 64)
	assert.Equal(t, "images/"+asset.ContentHash[:2]+"/"+asset.ContentHash+".png", asset.RelativePath)
	assert.Equal(t, 40, asset.Width)
	assert.Equal(t, 20, asset.Height)
	assert.FileExists(t, filepath.Join(root, filepath.FromSlash(asset.RelativePath)))
}

func TestFetch_IdenticalBytesShareOneAsset(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, root := newStore(t)
	ctx := context.Background()

	a, err := store.Fetch(ctx, models.ImageRef{SourceURL: srv.URL + "/img/a.png"}, srv.URL)
	require.NoError(t, err)
	b, err := store.Fetch(ctx, models.ImageRef{SourceURL: srv.URL + "/img/b.png"}, srv.URL)
	require.NoError(t, err)

	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)
	assert.Equal(t, 1, countFiles(t, root))
	assert.Equal(t, 2, store.Downloads())
}

func TestFetch_URLCacheSkipsNetwork(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, _ := newStore(t)
	ctx := context.Background()

	ref := models.ImageRef{SourceURL: "/img/a.png"}
	first, err := store.Fetch(ctx, ref, srv.URL)
	require.NoError(t, err)
	second, err := store.Fetch(ctx, ref, srv.URL+"/other/page")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, srv.count("/img/a.png"))
	assert.Equal(t, 1, store.Downloads())
}

func TestFetch_ConcurrentSameURLDownloadsOnce(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, root := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			asset, err := store.Fetch(context.Background(), models.ImageRef{SourceURL: "/img/a.png"}, srv.URL)
			assert.NoError(t, err)
			assert.NotNil(t, asset)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, srv.count("/img/a.png"))
	assert.Equal(t, 1, countFiles(t, root))
}

func TestFetch_ResizesLargeImages(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, root := newStore(t)

	asset, err := store.Fetch(context.Background(), models.ImageRef{SourceURL: "/img/big.png"}, srv.URL)
	require.NoError(t, err)
	require.NotNil(t, asset)

	assert.Equal(t, MaxDimension, asset.Width)
	assert.Equal(t, 960, asset.Height)
	assert.Equal(t, ".jpg", filepath.Ext(asset.RelativePath))

	f, err := os.Open(filepath.Join(root, filepath.FromSlash(asset.RelativePath)))
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, MaxDimension, cfg.Width)
}

func TestFetch_UnusableImagesYieldNil(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, root := newStore(t)
	ctx := context.Background()

	for _, src := range []string{
		"/img/missing.png",
		"/page.html",
		"/img/broken.jpg",
		"/img/huge.png",
		"data:image/png;base64,AAAA",
		"http://127.0.0.1:1/x.png",
	} {
		asset, err := store.Fetch(ctx, models.ImageRef{SourceURL: src}, srv.URL)
		assert.NoError(t, err, src)
		assert.Nil(t, asset, src)
	}
	assert.Equal(t, 0, countFiles(t, root))
}

func TestFetch_UnknownFormatStoredVerbatim(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	store, _ := newStore(t)

	asset, err := store.Fetch(context.Background(), models.ImageRef{SourceURL: "/img/logo.svg"}, srv.URL)
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, ".svg", filepath.Ext(asset.RelativePath))
	assert.Zero(t, asset.Width)
	assert.Zero(t, asset.Height)
}

func TestFetch_WaitsForHostBeforeEachDownload(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	limiter := frontier.NewHostLimiter(50 * time.Millisecond)
	store, err := New(t.TempDir(), Options{Wait: limiter.Wait}, logger.NewNop())
	require.NoError(t, err)

	start := time.Now()
	for _, src := range []string{"/img/a.png", "/img/b.png", "/img/logo.svg"} {
		asset, err := store.Fetch(context.Background(), models.ImageRef{SourceURL: src}, srv.URL)
		require.NoError(t, err)
		require.NotNil(t, asset, src)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 3, store.Downloads())
}

func TestFetch_AbortedWaitSkipsDownload(t *testing.T) {
	t.Parallel()
	srv := newImageServer(t)
	var waited []string
	store, err := New(t.TempDir(), Options{Wait: func(_ context.Context, rawURL string) error {
		waited = append(waited, rawURL)
		return errors.New("run cancelled")
	}}, logger.NewNop())
	require.NoError(t, err)

	asset, err := store.Fetch(context.Background(), models.ImageRef{SourceURL: "/img/a.png"}, srv.URL)
	require.NoError(t, err)
	assert.Nil(t, asset)
	assert.Equal(t, []string{srv.URL + "/img/a.png"}, waited)
	assert.Zero(t, srv.count("/img/a.png"))
	assert.Zero(t, store.Downloads())
}

func TestProcess_RejectsOversizedDeclaredImages(t *testing.T) {
	t.Parallel()

	_, _, _, _, err := process(pngHeader(60000, 60000), "image/png")
	assert.ErrorContains(t, err, "pixel budget")
}

func TestFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w, h, wantW, wantH int
	}{
		{3840, 2160, 1920, 1080},
		{1000, 4000, 480, 1920},
		{2000, 2000, 1920, 1920},
		{5000, 1, 1920, 1},
	}
	for _, tt := range tests {
		w, h := fit(tt.w, tt.h, MaxDimension)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}
