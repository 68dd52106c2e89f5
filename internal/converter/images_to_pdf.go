package converter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
)

// ImagesToPDF lays out one image per page, in input order. Each image is
// scaled uniformly to fit inside the page margins and centered.
func (c *Converter) ImagesToPDF(ctx context.Context, inputs []string, opts ImageToPDFOptions) (*Output, error) {
	if len(inputs) == 0 {
		return nil, &ValidationError{Field: "files", Cause: "at least one image file is required"}
	}

	filename := ensureExt(SanitizeFilename(opts.OutputFilename), ".pdf")
	outPath := filepath.Join(c.outputDir, c.diskName(filename))
	box := PageBox(opts.PageSize, opts.PageOrientation)
	size := fpdf.SizeType{Wd: box.Width, Ht: box.Height}

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           size,
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	for i, path := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, c.fail(OpImagesToPDF, err)
		}

		img, err := loadEmbeddable(path)
		if err != nil {
			return nil, c.fail(OpImagesToPDF, err)
		}

		name := fmt.Sprintf("image-%d", i)
		imgOpts := fpdf.ImageOptions{ImageType: img.kind}
		doc.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(img.data))

		doc.AddPageFormat("P", size)
		p := FitImage(box, float64(img.width), float64(img.height))
		doc.ImageOptions(name, p.X, p.Y, p.Width, p.Height, false, imgOpts, 0, "")

		if err := doc.Error(); err != nil {
			return nil, c.fail(OpImagesToPDF, fmt.Errorf("image %s: %w", path, err))
		}
	}

	if err := doc.OutputFileAndClose(outPath); err != nil {
		os.Remove(outPath)
		return nil, c.fail(OpImagesToPDF, err)
	}

	slog.Info("images converted to pdf",
		"images", len(inputs),
		"page_width", box.Width,
		"page_height", box.Height,
		"output", outPath,
	)
	return c.output(filename, outPath, len(inputs))
}
