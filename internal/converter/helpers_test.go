package converter

import (
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"
)

// helpers

func newTestConverter(t *testing.T) (*Converter, string) {
	t.Helper()

	dir := t.TempDir()
	c := New(dir)
	c.newID = func() string { return "job" }
	return c, dir
}

func solidImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, w, h int) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, solidImage(w, h)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return path
}

func writeGIF(t *testing.T, path string, w, h int) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	if err := gif.Encode(f, solidImage(w, h), nil); err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}
	return path
}

// writePDF generates a PDF with the given number of blank pages, each
// sized width x height points.
func writePDF(t *testing.T, path string, pages int, width, height float64) string {
	t.Helper()

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: width, Ht: height},
	})
	doc.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Text(20, 40, "test page")
	}

	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("failed to write pdf: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// listDir returns the names of the entries directly under dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func assertNoTempDirs(t *testing.T, dir string) {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "temp-*"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected temp directories to be removed, found %v", matches)
	}
}
