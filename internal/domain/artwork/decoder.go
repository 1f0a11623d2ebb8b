package artwork

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp" // BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// DefaultMaxPixels bounds the declared width*height of an image the decoder
// will fully decode. A 40 megapixel RGBA buffer is about 160 MB.
const DefaultMaxPixels = 40_000_000

// Decoder turns encoded artwork into bitmaps no wider than needed, and
// stores each decoded bitmap in the memory cache under the key it was
// fetched by.
type Decoder struct {
	mem       *MemoryCache
	maxPixels int64
}

// NewDecoder creates a decoder. mem may be nil. maxPixels <= 0 selects
// DefaultMaxPixels.
func NewDecoder(mem *MemoryCache, maxPixels int) *Decoder {
	d := &Decoder{mem: mem}
	d.setMaxPixels(maxPixels)
	return d
}

func (d *Decoder) setMaxPixels(n int) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	d.maxPixels = int64(n)
}

// SubsampleFactor returns the power of two to divide nativeWidth by: starting
// at 1 it doubles while nativeWidth/factor is still wider than targetWidth.
func SubsampleFactor(nativeWidth, targetWidth int) int {
	factor := 1
	if targetWidth <= 0 {
		return factor
	}
	for nativeWidth/factor > targetWidth {
		factor *= 2
	}
	return factor
}

// DecodeFile decodes the image at path. A missing file is an error; an
// unreadable or corrupt image yields (nil, nil).
func (d *Decoder) DecodeFile(path string, width int) (image.Image, error) {
	img, err := d.decodeFile(path, width)
	if img != nil {
		d.put(path, img)
	}
	return img, err
}

// decodeFile is DecodeFile without the memory write, for callers that cache
// the bitmap under a key of their own.
func (d *Decoder) decodeFile(path string, width int) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artwork: %w", err)
	}
	return d.decode(path, data, width), nil
}

// DecodeBytes decodes data, caching the result under key. It returns nil for
// data that is not a usable image.
func (d *Decoder) DecodeBytes(key string, data []byte, width int) image.Image {
	img := d.decode(key, data, width)
	if img != nil {
		d.put(key, img)
	}
	return img
}

func (d *Decoder) put(key string, img image.Image) {
	if d.mem != nil {
		d.mem.Put(key, img)
	}
}

func (d *Decoder) decode(key string, data []byte, width int) image.Image {
	// Bounds only; no pixel buffer yet.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		log.Debug().Err(err).Str("key", key).Int("size", len(data)).Msg("Unreadable artwork")
		return nil
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > d.maxPixels {
		log.Warn().
			Str("key", key).
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Int64("max_pixels", d.maxPixels).
			Msg("Artwork too large to decode")
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Str("key", key).Str("format", format).Msg("Failed to decode artwork")
		return nil
	}

	factor := SubsampleFactor(cfg.Width, width)
	if factor > 1 {
		img = subsample(img, factor)
	}

	log.Debug().
		Str("key", key).
		Str("format", format).
		Int("native", cfg.Width).
		Int("factor", factor).
		Int("width", img.Bounds().Dx()).
		Msg("Decoded artwork")

	return img
}

// subsample shrinks src by factor in both dimensions.
func subsample(src image.Image, factor int) image.Image {
	b := src.Bounds()
	w := max(b.Dx()/factor, 1)
	h := max(b.Dy()/factor, 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
