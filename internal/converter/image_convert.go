package converter

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"convertly/internal/archive"
)

// ConvertImages re-encodes inputs into opts.OutputFormat, resizing when a
// width or height is given. A single input yields a single image; several
// inputs yield a zip archive of the converted images.
func (c *Converter) ConvertImages(ctx context.Context, inputs []string, opts ImageConvertOptions) (*Output, error) {
	switch len(inputs) {
	case 0:
		return nil, &ValidationError{Field: "files", Cause: "at least one image file is required"}
	case 1:
		return c.convertSingle(inputs[0], opts)
	default:
		return c.convertBatch(ctx, inputs, opts)
	}
}

func (c *Converter) convertSingle(input string, opts ImageConvertOptions) (*Output, error) {
	filename := fmt.Sprintf("%s.%s", baseName(input), opts.OutputFormat)
	outPath := filepath.Join(c.outputDir, c.diskName(filename))

	if err := convertFile(input, outPath, opts); err != nil {
		return nil, c.fail(OpConvertImage, err)
	}

	slog.Info("image converted", "format", opts.OutputFormat, "output", outPath)
	return c.output(filename, outPath, 0)
}

func (c *Converter) convertBatch(ctx context.Context, inputs []string, opts ImageConvertOptions) (*Output, error) {
	tempDir, err := os.MkdirTemp(c.outputDir, "temp-")
	if err != nil {
		return nil, c.fail(OpConvertImage, fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer removeTemp(tempDir)

	filename := fmt.Sprintf("converted-images-%s.zip", c.newID())
	zipPath := filepath.Join(c.outputDir, filename)

	zw, err := archive.Create(zipPath)
	if err != nil {
		return nil, c.fail(OpConvertImage, err)
	}

	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			zw.Abort()
			return nil, c.fail(OpConvertImage, err)
		}

		name := uniqueName(seen, fmt.Sprintf("%s.%s", baseName(input), opts.OutputFormat))
		imgPath := filepath.Join(tempDir, name)
		if err := convertFile(input, imgPath, opts); err != nil {
			zw.Abort()
			return nil, c.fail(OpConvertImage, err)
		}

		if err := zw.AddFile(imgPath, name); err != nil {
			zw.Abort()
			return nil, c.fail(OpConvertImage, err)
		}
	}

	if err := zw.Close(); err != nil {
		os.Remove(zipPath)
		return nil, c.fail(OpConvertImage, err)
	}

	slog.Info("images converted",
		"images", len(inputs),
		"format", opts.OutputFormat,
		"output", zipPath,
	)
	return c.output(filename, zipPath, 0)
}

// convertFile decodes src, applies the resize rule and writes dst.
func convertFile(src, dst string, opts ImageConvertOptions) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", src, err)
	}

	img = resize(img, opts)
	return writeImage(dst, img, opts.OutputFormat, opts.quality())
}

func resize(img image.Image, opts ImageConvertOptions) image.Image {
	if opts.Width <= 0 && opts.Height <= 0 {
		return img
	}

	b := img.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), opts.Width, opts.Height, opts.MaintainAspectRatio)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
