package converter

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// maxRasterSide caps the longer edge of a rendered page in pixels. Page
// boxes come from uploaded documents and can be arbitrarily large.
const maxRasterSide = 4096

var labelFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// placeholderPage renders a white page-sized canvas carrying a
// "Page N of PDF" label. Page content itself is not rasterized.
func placeholderPage(box Box, page int) (*image.RGBA, error) {
	w, h, err := rasterSize(box)
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	f, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("failed to load label font: %w", err)
	}
	// Faces are not safe for concurrent use, so each render gets its own.
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    24,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label face: %w", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(100, 100),
	}
	d.DrawString(fmt.Sprintf("Page %d of PDF", page))

	return canvas, nil
}

// rasterSize maps a page box in points to canvas pixels, scaling it down
// so neither side exceeds maxRasterSide.
func rasterSize(box Box) (int, int, error) {
	bw, bh := box.Width, box.Height
	if !(bw > 0 && bh > 0) || math.IsInf(bw, 0) || math.IsInf(bh, 0) {
		return 0, 0, fmt.Errorf("invalid page size %.2fx%.2f", bw, bh)
	}

	if long := math.Max(bw, bh); long > maxRasterSide {
		bw = bw * maxRasterSide / long
		bh = bh * maxRasterSide / long
	}

	w := min(max(int(math.Ceil(bw)), 1), maxRasterSide)
	h := min(max(int(math.Ceil(bh)), 1), maxRasterSide)
	return w, h, nil
}
