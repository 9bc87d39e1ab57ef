package resource

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxTextureBytes bounds a single image download.
const maxTextureBytes = 64 << 20

// Texture is a decoded image ready for upload.
type Texture struct {
	URL    string
	Format string // decoder name: png, jpeg, webp
	Image  *image.RGBA
}

// Bounds returns the texture size.
func (t *Texture) Bounds() image.Rectangle {
	return t.Image.Bounds()
}

// TextureLoader downloads and decodes textures.
type TextureLoader struct {
	httpClient *http.Client
	maxSize    int
	logger     *slog.Logger
}

// NewTextureLoader returns a loader using the given HTTP timeout. Images with
// a side longer than maxSize are downscaled; maxSize <= 0 disables this.
func NewTextureLoader(timeout time.Duration, maxSize int, logger *slog.Logger) *TextureLoader {
	return &TextureLoader{
		httpClient: &http.Client{Timeout: timeout},
		maxSize:    maxSize,
		logger:     logger,
	}
}

// Load fetches url and decodes it. It has the Loader signature so it can back
// a Cache directly.
func (l *TextureLoader) Load(ctx context.Context, url string) (*Texture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{Key: url, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, &LoadError{Key: url, Err: fmt.Errorf("fetching texture: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Key: url, Err: fmt.Errorf("unexpected status code %d", resp.StatusCode)}
	}

	tex, err := DecodeTexture(io.LimitReader(resp.Body, maxTextureBytes), l.maxSize)
	if err != nil {
		return nil, &LoadError{Key: url, Err: err}
	}
	tex.URL = url

	l.logger.Debug("texture decoded",
		"url", url,
		"format", tex.Format,
		"width", tex.Bounds().Dx(),
		"height", tex.Bounds().Dy(),
	)
	return tex, nil
}

// DecodeTexture decodes a png, jpeg or webp image into RGBA, downscaling it
// to fit within maxSize pixels per side when maxSize > 0.
func DecodeTexture(r io.Reader, maxSize int) (*Texture, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("decoding image: empty %s image", format)
	}

	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		return &Texture{Format: format, Image: dst}, nil
	}

	if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return &Texture{Format: format, Image: rgba}, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Texture{Format: format, Image: dst}, nil
}
