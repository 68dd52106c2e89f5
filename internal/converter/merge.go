package converter

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MergePDFs concatenates the pages of inputs, in order, into one PDF.
// Any unreadable input aborts the merge and no output is kept.
func (c *Converter) MergePDFs(ctx context.Context, inputs []string, opts MergeOptions) (*Output, error) {
	if len(inputs) < 2 {
		return nil, &ValidationError{Field: "files", Cause: "at least 2 PDF files are required"}
	}
	if err := ctx.Err(); err != nil {
		return nil, c.fail(OpMerge, err)
	}

	filename := ensureExt(SanitizeFilename(opts.OutputFilename), ".pdf")
	outPath := filepath.Join(c.outputDir, c.diskName(filename))

	if err := api.MergeCreateFile(inputs, outPath, false, nil); err != nil {
		os.Remove(outPath)
		return nil, c.fail(OpMerge, err)
	}

	pages, err := api.PageCountFile(outPath)
	if err != nil {
		slog.Warn("failed to count merged pages", "path", outPath, "error", err)
	}

	slog.Info("pdfs merged", "inputs", len(inputs), "pages", pages, "output", outPath)
	return c.output(filename, outPath, pages)
}
