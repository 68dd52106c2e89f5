package converter

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// encodeImage writes img in the given format. Quality applies to jpg and
// webp; png and gif ignore it.
func encodeImage(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatJPG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// writeImage encodes img to path. A partially written file is removed.
func writeImage(path string, img image.Image, format Format, quality int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image %s: %w", path, err)
	}

	if err := encodeImage(file, img, format, quality); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close image %s: %w", path, err)
	}
	return nil
}

// targetSize computes resize dimensions. With only one of width/height set
// the other follows the source ratio. With both set, keepRatio fits the
// image inside the box and !keepRatio stretches to it exactly.
func targetSize(srcW, srcH, width, height int, keepRatio bool) (int, int) {
	switch {
	case width <= 0 && height <= 0:
		return srcW, srcH
	case width <= 0:
		return scaled(srcW, float64(height)/float64(srcH)), height
	case height <= 0:
		return width, scaled(srcH, float64(width)/float64(srcW))
	case !keepRatio:
		return width, height
	}

	scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	return scaled(srcW, scale), scaled(srcH, scale)
}

func scaled(n int, factor float64) int {
	v := int(math.Round(float64(n) * factor))
	if v < 1 {
		return 1
	}
	return v
}

// embeddable is image data in a form the PDF writer can place directly.
type embeddable struct {
	data   []byte
	kind   string // fpdf image type: "JPG" or "PNG"
	width  int
	height int
}

// loadEmbeddable reads an image for embedding into a PDF. JPEG and 8-bit
// non-interlaced PNG pass through untouched; anything else is re-encoded
// as PNG.
func loadEmbeddable(path string) (*embeddable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("image %s has no pixels", path)
	}

	switch {
	case format == "jpeg":
		return &embeddable{data: data, kind: "JPG", width: cfg.Width, height: cfg.Height}, nil
	case format == "png" && nativePNG(data):
		return &embeddable{data: data, kind: "PNG", width: cfg.Width, height: cfg.Height}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.Clone(img)); err != nil {
		return nil, fmt.Errorf("failed to normalize image %s: %w", path, err)
	}
	b := img.Bounds()
	return &embeddable{data: buf.Bytes(), kind: "PNG", width: b.Dx(), height: b.Dy()}, nil
}

// nativePNG reports whether the IHDR chunk declares a bit depth of at most
// 8 and no interlacing.
func nativePNG(data []byte) bool {
	const (
		bitDepthOffset  = 24
		interlaceOffset = 28
	)
	if len(data) <= interlaceOffset {
		return false
	}
	return data[bitDepthOffset] <= 8 && data[interlaceOffset] == 0
}
