package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"convertly/internal/converter"
	"convertly/internal/server/config"
	"convertly/internal/server/database"
	"convertly/internal/server/storage"
)

// RecordStore persists conversion history and the upload deletion queue.
type RecordStore interface {
	CreateConversion(ctx context.Context, c *database.Conversion) error
	GetConversion(ctx context.Context, id int64) (*database.Conversion, error)
	ListConversions(ctx context.Context, filter database.ListFilter) ([]*database.Conversion, error)
	DeleteConversion(ctx context.Context, id int64) error
	GetStats(ctx context.Context) (*database.Stats, error)
	SchedulePendingDeletions(ctx context.Context, paths []string, deleteAfter time.Time) error
}

// EventPublisher receives history change notifications.
type EventPublisher interface {
	Publish(Event)
}

// Event types published on history changes.
const (
	EventConversionCreated = "conversion.created"
	EventConversionDeleted = "conversion.deleted"
)

// Event describes a change to conversion history.
type Event struct {
	Type       string          `json:"type"`
	ID         int64           `json:"id"`
	Conversion *ConversionInfo `json:"conversion,omitempty"`
}

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// ConversionResult is returned after a successful conversion.
type ConversionResult struct {
	ID          int64
	Filename    string
	Size        int64
	OutputPath  string
	DownloadURL string
}

// ConversionInfo is a history record as exposed to clients.
type ConversionInfo struct {
	ID               int64          `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"originalFilename"`
	Filesize         int64          `json:"filesize"`
	ConversionType   string         `json:"conversionType"`
	OutputPath       string         `json:"outputPath"`
	CreatedAt        time.Time      `json:"created_at"`
	UserID           *int64         `json:"userId"`
	Metadata         map[string]any `json:"metadata"`
}

// ConversionService contains the business logic for conversion requests.
type ConversionService struct {
	repo   RecordStore
	store  storage.Store
	conv   *converter.Converter
	cfg    *config.Config
	events EventPublisher
	now    func() time.Time
}

// NewConversionService creates a new conversion service. events may be nil.
func NewConversionService(repo RecordStore, store storage.Store, conv *converter.Converter, cfg *config.Config, events EventPublisher) *ConversionService {
	return &ConversionService{
		repo:   repo,
		store:  store,
		conv:   conv,
		cfg:    cfg,
		events: events,
		now:    time.Now,
	}
}

// uploadRules bound the number of files each conversion accepts. A max
// of 0 means unbounded.
var uploadRules = map[database.ConversionType]struct {
	min, max int
	message  string
	mismatch string
}{
	database.TypePDFMerge:     {min: 2, message: "At least 2 PDF files are required", mismatch: "All files must be PDFs"},
	database.TypeImageToPDF:   {min: 1, message: "At least one image file is required", mismatch: "All files must be images"},
	database.TypePDFToImage:   {min: 1, max: 1, message: "A PDF file is required", mismatch: "The file must be a PDF"},
	database.TypeImageConvert: {min: 1, message: "At least one image file is required", mismatch: "All files must be images"},
}

// CheckUploadCount reports an InputError when n files is not acceptable
// for kind.
func CheckUploadCount(kind database.ConversionType, n int) error {
	rule, ok := uploadRules[kind]
	if !ok {
		return fmt.Errorf("unknown conversion type %q", kind)
	}
	if n < rule.min {
		return &InputError{Message: rule.message}
	}
	if rule.max > 0 && n > rule.max {
		return &InputError{Message: "Only one PDF file can be converted at a time"}
	}
	return nil
}

// job describes one conversion request for run.
type job struct {
	kind     database.ConversionType
	uploads  []Upload
	accept   func(*mimetype.MIME) bool
	opts     any
	userID   *int64
	convert  func(ctx context.Context, paths []string) (*converter.Output, error)
	metadata func(out *converter.Output) map[string]any
}

// MergePDFs merges two or more uploaded PDFs in upload order.
func (s *ConversionService) MergePDFs(ctx context.Context, uploads []Upload, opts converter.MergeOptions, userID *int64) (*ConversionResult, error) {
	return s.run(ctx, job{
		kind:    database.TypePDFMerge,
		uploads: uploads,
		accept:  isPDF,
		opts:    opts,
		userID:  userID,
		convert: func(ctx context.Context, paths []string) (*converter.Output, error) {
			return s.conv.MergePDFs(ctx, paths, opts)
		},
		metadata: func(out *converter.Output) map[string]any {
			return map[string]any{"fileCount": len(uploads), "pageCount": out.PageCount, "options": opts}
		},
	})
}

// ImagesToPDF places each uploaded image on its own PDF page.
func (s *ConversionService) ImagesToPDF(ctx context.Context, uploads []Upload, opts converter.ImageToPDFOptions, userID *int64) (*ConversionResult, error) {
	return s.run(ctx, job{
		kind:    database.TypeImageToPDF,
		uploads: uploads,
		accept:  isImage,
		opts:    opts,
		userID:  userID,
		convert: func(ctx context.Context, paths []string) (*converter.Output, error) {
			return s.conv.ImagesToPDF(ctx, paths, opts)
		},
		metadata: func(out *converter.Output) map[string]any {
			return map[string]any{"imageCount": len(uploads), "options": opts}
		},
	})
}

// PDFToImages renders an uploaded PDF into a zip of page images.
func (s *ConversionService) PDFToImages(ctx context.Context, upload *Upload, opts converter.PDFToImageOptions, userID *int64) (*ConversionResult, error) {
	var uploads []Upload
	if upload != nil {
		uploads = []Upload{*upload}
	}

	return s.run(ctx, job{
		kind:    database.TypePDFToImage,
		uploads: uploads,
		accept:  isPDF,
		opts:    opts,
		userID:  userID,
		convert: func(ctx context.Context, paths []string) (*converter.Output, error) {
			return s.conv.PDFToImages(ctx, paths[0], opts)
		},
		metadata: func(out *converter.Output) map[string]any {
			return map[string]any{"pageCount": out.PageCount, "format": opts.OutputFormat, "options": opts}
		},
	})
}

// ConvertImages re-encodes uploaded images into another format.
func (s *ConversionService) ConvertImages(ctx context.Context, uploads []Upload, opts converter.ImageConvertOptions, userID *int64) (*ConversionResult, error) {
	return s.run(ctx, job{
		kind:    database.TypeImageConvert,
		uploads: uploads,
		accept:  isImage,
		opts:    opts,
		userID:  userID,
		convert: func(ctx context.Context, paths []string) (*converter.Output, error) {
			return s.conv.ConvertImages(ctx, paths, opts)
		},
		metadata: func(out *converter.Output) map[string]any {
			return map[string]any{"imageCount": len(uploads), "format": opts.OutputFormat, "options": opts}
		},
	})
}

func (s *ConversionService) run(ctx context.Context, j job) (*ConversionResult, error) {
	// 1. Validate request shape
	if err := CheckUploadCount(j.kind, len(j.uploads)); err != nil {
		return nil, err
	}
	for _, u := range j.uploads {
		if u.Size > s.cfg.MaxFileSize {
			return nil, fmt.Errorf("%w: %s", ErrFileTooLarge, u.Filename)
		}
	}
	if err := converter.ValidateOptions(j.opts); err != nil {
		slog.Info("rejected conversion options", "type", j.kind, "error", err)
		return nil, ErrInvalidOptions
	}

	// 2. Stage uploads; they are always queued for delayed removal
	staged, err := s.stage(j.uploads)
	defer s.scheduleRemoval(staged)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(staged))
	names := make([]string, len(staged))
	for i, f := range staged {
		paths[i] = f.Path
		names[i] = f.OriginalName
	}

	// 3. Check content types
	for _, f := range staged {
		mime, err := mimetype.DetectFile(f.Path)
		if err != nil {
			return nil, &ConversionFailure{Type: j.kind, Err: fmt.Errorf("failed to detect type of %s: %w", f.OriginalName, err)}
		}
		if !j.accept(mime) {
			slog.Warn("rejected upload content",
				"type", j.kind,
				"file", f.OriginalName,
				"content_type", mime.String(),
			)
			return nil, &InputError{Message: uploadRules[j.kind].mismatch}
		}
	}

	// 4. Convert
	out, err := j.convert(ctx, paths)
	if err != nil {
		var vErr *converter.ValidationError
		if errors.As(err, &vErr) {
			return nil, &InputError{Message: vErr.Error()}
		}
		return nil, &ConversionFailure{Type: j.kind, Err: err}
	}

	// 5. Record history
	record := &database.Conversion{
		Filename:         out.Filename,
		OriginalFilename: strings.Join(names, ", "),
		Filesize:         out.Size,
		ConversionType:   j.kind,
		OutputPath:       out.Path,
		UserID:           j.userID,
		Metadata:         j.metadata(out),
	}
	if err := s.repo.CreateConversion(ctx, record); err != nil {
		// Clean up the output on DB failure
		if delErr := s.store.Delete(out.Path); delErr != nil {
			slog.Error("failed to remove orphaned output", "path", out.Path, "error", delErr)
		}
		return nil, fmt.Errorf("failed to create conversion record: %w", err)
	}

	slog.Info("conversion processed",
		"id", record.ID,
		"type", j.kind,
		"inputs", len(staged),
		"filename", out.Filename,
		"size", out.Size,
	)

	s.publish(Event{Type: EventConversionCreated, ID: record.ID, Conversion: toInfo(record)})

	return &ConversionResult{
		ID:          record.ID,
		Filename:    out.Filename,
		Size:        out.Size,
		OutputPath:  out.Path,
		DownloadURL: downloadURL(out.Path, out.Filename),
	}, nil
}

func (s *ConversionService) stage(uploads []Upload) ([]*storage.StagedFile, error) {
	staged := make([]*storage.StagedFile, 0, len(uploads))
	for _, u := range uploads {
		f, err := s.store.SaveUpload(u.Filename, u.Content)
		if err != nil {
			return staged, fmt.Errorf("failed to stage upload %s: %w", u.Filename, err)
		}
		staged = append(staged, f)
	}
	return staged, nil
}

// scheduleRemoval queues staged files for deletion after the retention
// delay. If the queue cannot be written, an in-process timer is used so
// the files are still removed while this process lives.
func (s *ConversionService) scheduleRemoval(staged []*storage.StagedFile) {
	if len(staged) == 0 {
		return
	}

	paths := make([]string, len(staged))
	for i, f := range staged {
		paths[i] = f.Path
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deleteAfter := s.now().Add(s.cfg.UploadRetention)
	if err := s.repo.SchedulePendingDeletions(ctx, paths, deleteAfter); err != nil {
		slog.Error("failed to queue staged uploads for deletion, falling back to timer",
			"count", len(paths),
			"error", err,
		)
		time.AfterFunc(s.cfg.UploadRetention, func() {
			for _, p := range paths {
				if err := s.store.Delete(p); err != nil {
					slog.Error("failed to delete staged file", "path", p, "error", err)
				}
			}
		})
	}
}

// ResolveDownload validates a download request and returns the file on
// disk and the name to offer the client. The root check runs before any
// other validation of path.
func (s *ConversionService) ResolveDownload(path, filename string) (string, string, error) {
	filePath, err := s.store.Resolve(path)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOutsideRoot):
			slog.Warn("blocked download outside root", "path", path)
			return "", "", ErrForbidden
		case errors.Is(err, storage.ErrFileNotFound):
			return "", "", ErrFileNotFound
		default:
			return "", "", err
		}
	}

	name := converter.SanitizeFilename(filename)
	if strings.TrimSpace(filename) == "" {
		name = filepath.Base(filePath)
	}
	return filePath, name, nil
}

// ListConversions returns the most recent records, newest first,
// optionally for one owner only.
func (s *ConversionService) ListConversions(ctx context.Context, userID *int64) ([]*ConversionInfo, error) {
	records, err := s.repo.ListConversions(ctx, database.ListFilter{
		UserID: userID,
		Limit:  s.cfg.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}

	infos := make([]*ConversionInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, toInfo(r))
	}
	return infos, nil
}

// DeleteConversion removes a record and, best-effort, its output file.
func (s *ConversionService) DeleteConversion(ctx context.Context, id int64) error {
	record, err := s.repo.GetConversion(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrConversionNotFound) {
			return ErrNotFound
		}
		return err
	}

	// Continue with DB deletion even if file deletion fails
	if err := s.store.Delete(record.OutputPath); err != nil {
		slog.Warn("failed to delete output file", "id", id, "path", record.OutputPath, "error", err)
	}

	if err := s.repo.DeleteConversion(ctx, id); err != nil {
		if errors.Is(err, database.ErrConversionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete conversion record: %w", err)
	}

	slog.Info("conversion deleted", "id", id, "filename", record.Filename)
	s.publish(Event{Type: EventConversionDeleted, ID: id})
	return nil
}

// GetStats returns aggregate conversion statistics.
func (s *ConversionService) GetStats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

func (s *ConversionService) publish(ev Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

// --- Helpers ---

func toInfo(r *database.Conversion) *ConversionInfo {
	return &ConversionInfo{
		ID:               r.ID,
		Filename:         r.Filename,
		OriginalFilename: r.OriginalFilename,
		Filesize:         r.Filesize,
		ConversionType:   string(r.ConversionType),
		OutputPath:       r.OutputPath,
		CreatedAt:        r.CreatedAt,
		UserID:           r.UserID,
		Metadata:         r.Metadata,
	}
}

func downloadURL(path, filename string) string {
	return "/api/download?path=" + url.QueryEscape(path) + "&filename=" + url.QueryEscape(filename)
}

func isPDF(m *mimetype.MIME) bool {
	return m.Is("application/pdf")
}

func isImage(m *mimetype.MIME) bool {
	return strings.HasPrefix(m.String(), "image/")
}
