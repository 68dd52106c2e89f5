package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"convertly/internal/archive"
)

// PDFToImages renders one image per page of input and bundles them into
// a zip archive with entries page-1.<ext> .. page-N.<ext>.
func (c *Converter) PDFToImages(ctx context.Context, input string, opts PDFToImageOptions) (*Output, error) {
	boxes, err := readPageBoxes(input)
	if err != nil {
		return nil, c.fail(OpPDFToImages, err)
	}
	if len(boxes) == 0 {
		return nil, c.fail(OpPDFToImages, errors.New("document has no pages"))
	}

	tempDir, err := os.MkdirTemp(c.outputDir, "temp-")
	if err != nil {
		return nil, c.fail(OpPDFToImages, fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer removeTemp(tempDir)

	filename := fmt.Sprintf("pdf-images-%s.zip", c.newID())
	zipPath := filepath.Join(c.outputDir, filename)

	zw, err := archive.Create(zipPath)
	if err != nil {
		return nil, c.fail(OpPDFToImages, err)
	}

	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			zw.Abort()
			return nil, c.fail(OpPDFToImages, err)
		}

		page := i + 1
		img, err := placeholderPage(box, page)
		if err != nil {
			zw.Abort()
			return nil, c.fail(OpPDFToImages, fmt.Errorf("page %d: %w", page, err))
		}

		name := fmt.Sprintf("page-%d.%s", page, opts.OutputFormat)
		imgPath := filepath.Join(tempDir, name)
		if err := writeImage(imgPath, img, opts.OutputFormat, opts.quality()); err != nil {
			zw.Abort()
			return nil, c.fail(OpPDFToImages, fmt.Errorf("page %d: %w", page, err))
		}

		if err := zw.AddFile(imgPath, name); err != nil {
			zw.Abort()
			return nil, c.fail(OpPDFToImages, err)
		}
	}

	// Close flushes the archive; its size is only final afterwards.
	if err := zw.Close(); err != nil {
		os.Remove(zipPath)
		return nil, c.fail(OpPDFToImages, err)
	}

	slog.Info("pdf converted to images",
		"pages", len(boxes),
		"format", opts.OutputFormat,
		"output", zipPath,
	)
	return c.output(filename, zipPath, len(boxes))
}

// readPageBoxes returns the MediaBox size of every page in the document.
// Pages without a readable MediaBox get US Letter.
func readPageBoxes(path string) (boxes []Box, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			boxes = nil
			err = fmt.Errorf("malformed pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	boxes = make([]Box, 0, n)
	for i := 1; i <= n; i++ {
		box, ok := mediaBox(r.Page(i).V)
		if !ok {
			box = Box{Width: 612, Height: 792}
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// mediaBox looks up the page's MediaBox, following inheritance through
// the page tree.
func mediaBox(v pdf.Value) (Box, bool) {
	for depth := 0; !v.IsNull() && depth < 32; depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w < 0 {
				w = -w
			}
			if h < 0 {
				h = -h
			}
			if w > 0 && h > 0 {
				return Box{Width: w, Height: h}, true
			}
			return Box{}, false
		}
		v = v.Key("Parent")
	}
	return Box{}, false
}
