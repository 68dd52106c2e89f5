package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Builder streams files into a zip archive on disk.
type Builder struct {
	path  string
	file  *os.File
	zw    *zip.Writer
	count int
}

// Create opens a new archive at path. Entries are deflated at the
// highest compression level.
func Create(path string) (*Builder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive %s: %w", path, err)
	}

	zw := zip.NewWriter(file)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	return &Builder{path: path, file: file, zw: zw}, nil
}

// Count returns the number of entries added so far.
func (b *Builder) Count() int {
	return b.count
}

// AddFile copies srcPath into the archive under name.
func (b *Builder) AddFile(srcPath, name string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := b.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}

	b.count++
	return nil
}

// Close finalizes the central directory and waits until the archive is
// flushed to stable storage. The archive must not be reported as ready
// before Close returns nil.
func (b *Builder) Close() error {
	if err := b.zw.Close(); err != nil {
		b.file.Close()
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		b.file.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// Abort discards a partially written archive.
func (b *Builder) Abort() {
	b.zw.Close()
	b.file.Close()
	os.Remove(b.path)
}

// Entries lists the entry names of the archive at path, in archive order.
func Entries(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}
