package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"convertly/internal/converter"
)

var (
	ErrOutsideRoot  = errors.New("path outside working root")
	ErrFileNotFound = errors.New("file not found")
)

// Store defines the file layout the server works against: a staging area
// for uploads and an output area for conversion results, both confined
// to one root.
type Store interface {
	EnsureDir() error
	SaveUpload(originalName string, data io.Reader) (*StagedFile, error)
	OutputDir() string
	Resolve(path string) (string, error)
	Delete(path string) error
}

// StagedFile is an upload written to the staging area.
type StagedFile struct {
	ID           string
	OriginalName string
	Path         string
	Size         int64
}

// FileSystemStore keeps uploads and outputs on the local filesystem.
type FileSystemStore struct {
	root      string
	uploadDir string
	outputDir string
}

// NewFileSystemStore creates a store rooted at root. uploadDir and
// outputDir are made absolute and must lie inside root.
func NewFileSystemStore(root, uploadDir, outputDir string) *FileSystemStore {
	return &FileSystemStore{
		root:      absPath(root),
		uploadDir: absPath(uploadDir),
		outputDir: absPath(outputDir),
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// EnsureDir creates the upload and output directories if they don't exist.
func (fs *FileSystemStore) EnsureDir() error {
	for _, dir := range []string{fs.uploadDir, fs.outputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return nil
}

// OutputDir returns the absolute directory conversion results go to.
func (fs *FileSystemStore) OutputDir() string {
	return fs.outputDir
}

// SaveUpload writes data to uploads/<id>/<original name>. Keeping the
// original name as the basename lets conversions derive output names
// from it.
func (fs *FileSystemStore) SaveUpload(originalName string, data io.Reader) (*StagedFile, error) {
	id := uuid.NewString()
	dir := filepath.Join(fs.uploadDir, id)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	name := converter.SanitizeFilename(originalName)
	filePath := filepath.Join(dir, name)

	file, err := os.Create(filePath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &StagedFile{
		ID:           id,
		OriginalName: name,
		Path:         filePath,
		Size:         n,
	}, nil
}

// Resolve maps a stored path to an absolute path of an existing regular
// file. Relative paths are taken relative to the root. The root check
// runs before any filesystem access, and again on the symlink-resolved
// target so links cannot point out of the root.
func (fs *FileSystemStore) Resolve(path string) (string, error) {
	abs, err := fs.withinRoot(path)
	if err != nil {
		return "", err
	}

	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}
	root, err := filepath.EvalSymlinks(fs.root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	if !inside(root, target) {
		return "", ErrOutsideRoot
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", ErrFileNotFound
	}

	return abs, nil
}

// Delete removes a file inside the root. A missing file is not an error.
// When the file sat in its own staging directory, that directory is
// removed too once empty.
func (fs *FileSystemStore) Delete(path string) error {
	abs, err := fs.withinRoot(path)
	if err != nil {
		return err
	}

	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", abs, err)
	}

	parent := filepath.Dir(abs)
	if filepath.Dir(parent) == fs.uploadDir && parent != fs.outputDir {
		// Fails harmlessly while the directory still has entries.
		os.Remove(parent)
	}
	return nil
}

func (fs *FileSystemStore) withinRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrFileNotFound
	}

	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(fs.root, p)
	}
	p = filepath.Clean(p)

	if !inside(fs.root, p) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// inside reports whether the cleaned path p lies within root.
func inside(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
