package converter

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

// Operation names used in logs and errors.
const (
	OpMerge        = "merge"
	OpImagesToPDF  = "images_to_pdf"
	OpPDFToImages  = "pdf_to_images"
	OpConvertImage = "convert_images"
)

// Converter runs the conversion primitives against files on disk and
// writes results into its output directory.
type Converter struct {
	outputDir string
	newID     func() string
}

// Output describes a generated file.
type Output struct {
	Filename  string // user-facing name
	Path      string // location on disk
	Size      int64
	PageCount int
}

// New creates a Converter writing into outputDir. The directory must exist.
func New(outputDir string) *Converter {
	return &Converter{
		outputDir: outputDir,
		newID:     uuid.NewString,
	}
}

func (c *Converter) output(filename, path string, pageCount int) (*Output, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output %s: %w", path, err)
	}
	return &Output{
		Filename:  filename,
		Path:      path,
		Size:      info.Size(),
		PageCount: pageCount,
	}, nil
}

func (c *Converter) fail(op string, err error) error {
	slog.Error("conversion failed", "op", op, "error", err)
	return &ConversionError{Op: op, Err: err}
}

// removeTemp sweeps a per-job temp directory. Failures are logged only.
func removeTemp(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("failed to remove temp directory", "dir", dir, "error", err)
	}
}
