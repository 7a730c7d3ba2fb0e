package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoders
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/adintel/internal/policy/retry"
)

// Image fetch defaults.
const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultMaxImageBytes = 10 << 20
)

// Adaptive threshold parameters: a Gaussian weighted neighbourhood mean
// minus thresholdOffset.
const (
	thresholdSigma  = 2.0
	thresholdOffset = 2
)

// HTTPSource downloads and decodes images over HTTP.
type HTTPSource struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPSource builds an HTTPSource. Zero values select the defaults.
func NewHTTPSource(client *http.Client, maxBytes int64) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &HTTPSource{client: client, maxBytes: maxBytes}
}

// Fetch implements ImageSource.
func (s *HTTPSource) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retry.NewStatusError(resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", s.maxBytes)
	}
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Preprocess converts img to grayscale, binarizes it with a Gaussian
// adaptive threshold and removes speckle noise with a 3x3 median filter.
func Preprocess(img image.Image) *image.Gray {
	gray := imaging.Grayscale(img)
	mean := imaging.Blur(gray, thresholdSigma)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	binary := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			i := gray.PixOffset(x, y)
			if int(gray.Pix[i]) > int(mean.Pix[mean.PixOffset(x, y)])-thresholdOffset {
				binary.Pix[binary.PixOffset(x, y)] = 0xff
			}
		}
	}
	return median3(binary)
}

// median3 applies a 3x3 median filter to a binary image, clamping at edges.
func median3(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)
	for y := range h {
		for x := range w {
			white := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx := min(max(x+dx, 0), w-1)
					ny := min(max(y+dy, 0), h-1)
					if src.Pix[src.PixOffset(nx, ny)] != 0 {
						white++
					}
				}
			}
			if white >= 5 {
				dst.Pix[dst.PixOffset(x, y)] = 0xff
			}
		}
	}
	return dst
}

// encodePNG serializes a preprocessed image for engines that read files.
func encodePNG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
