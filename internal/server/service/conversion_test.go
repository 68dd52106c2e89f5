package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"convertly/internal/converter"
	"convertly/internal/server/config"
	"convertly/internal/server/database"
	"convertly/internal/server/storage"
)

// --- Fakes ---

type fakeRepo struct {
	mu          sync.Mutex
	nextID      int64
	records     map[int64]*database.Conversion
	scheduled   []string
	deleteAfter time.Time
	createErr   error
	scheduleErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64]*database.Conversion)}
}

func (r *fakeRepo) CreateConversion(_ context.Context, c *database.Conversion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Second)
	r.records[c.ID] = c
	return nil
}

func (r *fakeRepo) GetConversion(_ context.Context, id int64) (*database.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok {
		return nil, database.ErrConversionNotFound
	}
	return c, nil
}

func (r *fakeRepo) ListConversions(_ context.Context, filter database.ListFilter) ([]*database.Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.Conversion
	for id := r.nextID; id > 0 && len(out) < filter.Limit; id-- {
		c, ok := r.records[id]
		if !ok {
			continue
		}
		if filter.UserID != nil && (c.UserID == nil || *c.UserID != *filter.UserID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeRepo) DeleteConversion(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return database.ErrConversionNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) GetStats(_ context.Context) (*database.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &database.Stats{ByType: make(map[database.ConversionType]int64)}
	for _, c := range r.records {
		stats.TotalConversions++
		stats.ByType[c.ConversionType]++
		stats.StorageUsed += c.Filesize
	}
	return stats, nil
}

func (r *fakeRepo) SchedulePendingDeletions(_ context.Context, paths []string, deleteAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduleErr != nil {
		return r.scheduleErr
	}
	r.scheduled = append(r.scheduled, paths...)
	r.deleteAfter = deleteAfter
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// --- Helpers ---

type testEnv struct {
	svc    *ConversionService
	repo   *fakeRepo
	store  *storage.FileSystemStore
	events *recordingPublisher
	root   string
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		RootDir:         root,
		MaxFileSize:     1024 * 1024,
		UploadRetention: time.Hour,
		HistoryLimit:    50,
	}
	store := storage.NewFileSystemStore(root, cfg.UploadDir(), cfg.OutputDir())
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo := newFakeRepo()
	events := &recordingPublisher{}
	svc := NewConversionService(repo, store, converter.New(store.OutputDir()), cfg, events)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &testEnv{svc: svc, repo: repo, store: store, events: events, root: root, now: now}
}

func pdfUpload(t *testing.T, name string, pages int) Upload {
	t.Helper()

	doc := fpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		doc.AddPage()
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("failed to build pdf: %v", err)
	}
	return Upload{Filename: name, Size: int64(buf.Len()), Content: &buf}
}

func pngUpload(t *testing.T, name string, w, h int) Upload {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return Upload{Filename: name, Size: int64(buf.Len()), Content: &buf}
}

func textUpload(name, content string) Upload {
	return Upload{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)}
}

// --- Conversions ---

func TestMergePDFs(t *testing.T) {
	env := newTestEnv(t)
	userID := int64(7)

	res, err := env.svc.MergePDFs(context.Background(),
		[]Upload{pdfUpload(t, "a.pdf", 1), pdfUpload(t, "b.pdf", 2)},
		converter.MergeOptions{OutputFilename: "combined"},
		&userID,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Filename != "combined.pdf" {
		t.Errorf("expected combined.pdf, got %q", res.Filename)
	}
	if !strings.HasPrefix(res.DownloadURL, "/api/download?path=") || !strings.HasSuffix(res.DownloadURL, "&filename=combined.pdf") {
		t.Errorf("unexpected download url %q", res.DownloadURL)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("expected output on disk: %v", err)
	}

	record := env.repo.records[res.ID]
	if record == nil {
		t.Fatal("expected record to be created")
	}
	if record.ConversionType != database.TypePDFMerge {
		t.Errorf("expected PDF_MERGE, got %s", record.ConversionType)
	}
	if record.OriginalFilename != "a.pdf, b.pdf" {
		t.Errorf("expected joined original names, got %q", record.OriginalFilename)
	}
	if record.Filesize != res.Size {
		t.Errorf("expected filesize %d, got %d", res.Size, record.Filesize)
	}
	if record.UserID == nil || *record.UserID != 7 {
		t.Errorf("expected owner 7, got %v", record.UserID)
	}
	if record.Metadata["fileCount"] != 2 || record.Metadata["pageCount"] != 3 {
		t.Errorf("unexpected metadata %v", record.Metadata)
	}

	if len(env.repo.scheduled) != 2 {
		t.Errorf("expected 2 staged uploads scheduled, got %d", len(env.repo.scheduled))
	}
	if !env.repo.deleteAfter.Equal(env.now.Add(time.Hour)) {
		t.Errorf("expected deletion after one hour, got %v", env.repo.deleteAfter)
	}

	if len(env.events.events) != 1 || env.events.events[0].Type != EventConversionCreated {
		t.Errorf("expected one created event, got %+v", env.events.events)
	}
}

func TestImagesToPDF(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.ImagesToPDF(context.Background(),
		[]Upload{pngUpload(t, "one.png", 20, 10), pngUpload(t, "two.png", 10, 20)},
		converter.ImageToPDFOptions{OutputFilename: "photos", PageOrientation: converter.Landscape},
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := env.repo.records[res.ID]
	if record.ConversionType != database.TypeImageToPDF {
		t.Errorf("expected IMAGE_TO_PDF, got %s", record.ConversionType)
	}
	if record.Metadata["imageCount"] != 2 {
		t.Errorf("expected imageCount 2, got %v", record.Metadata["imageCount"])
	}
	if record.UserID != nil {
		t.Errorf("expected no owner, got %v", *record.UserID)
	}
}

func TestPDFToImages(t *testing.T) {
	env := newTestEnv(t)
	upload := pdfUpload(t, "slides.pdf", 2)

	res, err := env.svc.PDFToImages(context.Background(), &upload,
		converter.PDFToImageOptions{OutputFormat: converter.FormatJPG}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(res.Filename, "pdf-images-") || filepath.Ext(res.Filename) != ".zip" {
		t.Errorf("unexpected archive name %q", res.Filename)
	}

	record := env.repo.records[res.ID]
	if record.OriginalFilename != "slides.pdf" {
		t.Errorf("expected original filename slides.pdf, got %q", record.OriginalFilename)
	}
	if record.Metadata["pageCount"] != 2 || record.Metadata["format"] != converter.FormatJPG {
		t.Errorf("unexpected metadata %v", record.Metadata)
	}
}

func TestConvertImages(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.ConvertImages(context.Background(),
		[]Upload{pngUpload(t, "logo.png", 30, 30)},
		converter.ImageConvertOptions{OutputFormat: converter.FormatWebP},
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Filename != "logo.webp" {
		t.Errorf("expected logo.webp, got %q", res.Filename)
	}
	if env.repo.records[res.ID].Metadata["imageCount"] != 1 {
		t.Errorf("unexpected metadata %v", env.repo.records[res.ID].Metadata)
	}
}

func TestConversionErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("merge needs two files", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.MergePDFs(ctx, []Upload{pdfUpload(t, "a.pdf", 1)}, converter.MergeOptions{OutputFilename: "x"}, nil)

		var inErr *InputError
		if !errors.As(err, &inErr) || !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected InputError, got %v", err)
		}
		if inErr.Message != "At least 2 PDF files are required" {
			t.Errorf("unexpected message %q", inErr.Message)
		}
	})

	t.Run("missing pdf", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.PDFToImages(ctx, nil, converter.PDFToImageOptions{OutputFormat: converter.FormatPNG}, nil)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.ConvertImages(ctx, []Upload{pngUpload(t, "a.png", 4, 4)},
			converter.ImageConvertOptions{OutputFormat: "bmp"}, nil)
		if !errors.Is(err, ErrInvalidOptions) {
			t.Fatalf("expected ErrInvalidOptions, got %v", err)
		}
		if len(env.repo.scheduled) != 0 {
			t.Error("expected nothing to be staged")
		}
	})

	t.Run("file too large", func(t *testing.T) {
		env := newTestEnv(t)
		big := textUpload("huge.png", "x")
		big.Size = 2 * 1024 * 1024

		_, err := env.svc.ConvertImages(ctx, []Upload{big}, converter.ImageConvertOptions{OutputFormat: converter.FormatPNG}, nil)
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("corrupt pdf is a generic failure and still schedules cleanup", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.svc.MergePDFs(ctx,
			[]Upload{pdfUpload(t, "a.pdf", 1), textUpload("b.pdf", "%PDF-1.4 broken")},
			converter.MergeOptions{OutputFilename: "x"}, nil)

		var failure *ConversionFailure
		if !errors.As(err, &failure) || !errors.Is(err, ErrConversionFailed) {
			t.Fatalf("expected ConversionFailure, got %v", err)
		}
		if failure.Message() != "Failed to merge PDFs" {
			t.Errorf("unexpected message %q", failure.Message())
		}
		if len(env.repo.records) != 0 {
			t.Error("expected no record on failure")
		}
		if len(env.repo.scheduled) != 2 {
			t.Errorf("expected staged uploads to be scheduled, got %d", len(env.repo.scheduled))
		}
		entries, _ := os.ReadDir(env.store.OutputDir())
		if len(entries) != 0 {
			t.Errorf("expected no output files, found %d", len(entries))
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		tests := []struct {
			name    string
			run     func(t *testing.T, env *testEnv) error
			message string
		}{
			{
				name: "text as image",
				run: func(t *testing.T, env *testEnv) error {
					_, err := env.svc.ImagesToPDF(ctx, []Upload{textUpload("notes.png", "just some text")},
						converter.ImageToPDFOptions{OutputFilename: "x"}, nil)
					return err
				},
				message: "All files must be images",
			},
			{
				name: "images named as pdfs",
				run: func(t *testing.T, env *testEnv) error {
					_, err := env.svc.MergePDFs(ctx,
						[]Upload{pngUpload(t, "a.pdf", 4, 4), pngUpload(t, "b.pdf", 4, 4)},
						converter.MergeOptions{OutputFilename: "m"}, nil)
					return err
				},
				message: "All files must be PDFs",
			},
			{
				name: "image sent for pdf to image",
				run: func(t *testing.T, env *testEnv) error {
					upload := pngUpload(t, "scan.pdf", 4, 4)
					_, err := env.svc.PDFToImages(ctx, &upload,
						converter.PDFToImageOptions{OutputFormat: converter.FormatPNG}, nil)
					return err
				},
				message: "The file must be a PDF",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t)

				err := tt.run(t, env)

				var inputErr *InputError
				if !errors.As(err, &inputErr) || !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected InputError, got %v", err)
				}
				if inputErr.Message != tt.message {
					t.Errorf("expected %q, got %q", tt.message, inputErr.Message)
				}
				if errors.Is(err, ErrConversionFailed) {
					t.Error("type mismatch must not be reported as a conversion failure")
				}
				if len(env.repo.records) != 0 {
					t.Errorf("expected no records, got %d", len(env.repo.records))
				}
				if len(env.repo.scheduled) == 0 {
					t.Error("expected staged uploads to be scheduled for deletion")
				}
				entries, _ := os.ReadDir(env.store.OutputDir())
				if len(entries) != 0 {
					t.Errorf("expected no output, found %d entries", len(entries))
				}
			})
		}
	})

	t.Run("record failure removes output", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.createErr = errors.New("db down")

		_, err := env.svc.ConvertImages(ctx, []Upload{pngUpload(t, "a.png", 4, 4)},
			converter.ImageConvertOptions{OutputFormat: converter.FormatPNG}, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		entries, _ := os.ReadDir(env.store.OutputDir())
		if len(entries) != 0 {
			t.Errorf("expected orphaned output to be removed, found %d files", len(entries))
		}
	})
}

func TestScheduleFallback(t *testing.T) {
	env := newTestEnv(t)
	env.repo.scheduleErr = errors.New("db down")
	env.svc.cfg.UploadRetention = 10 * time.Millisecond

	upload := pngUpload(t, "a.png", 4, 4)
	if _, err := env.svc.ConvertImages(context.Background(), []Upload{upload},
		converter.ImageConvertOptions{OutputFormat: converter.FormatPNG}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uploadDir := filepath.Join(env.root, "uploads")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(uploadDir)
		// only the output directory should remain
		if len(entries) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected staged upload to be removed by fallback timer")
}

// --- Download, history, delete ---

func TestResolveDownload(t *testing.T) {
	env := newTestEnv(t)

	outFile := filepath.Join(env.store.OutputDir(), "abc-result.pdf")
	os.WriteFile(outFile, []byte("pdf"), 0644)

	t.Run("serves file inside root", func(t *testing.T) {
		path, name, err := env.svc.ResolveDownload(outFile, "result.pdf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != outFile || name != "result.pdf" {
			t.Errorf("unexpected resolution %s %s", path, name)
		}
	})

	t.Run("empty filename falls back to basename", func(t *testing.T) {
		_, name, err := env.svc.ResolveDownload(outFile, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "abc-result.pdf" {
			t.Errorf("expected abc-result.pdf, got %s", name)
		}
	})

	t.Run("traversal is forbidden", func(t *testing.T) {
		if _, _, err := env.svc.ResolveDownload("../../etc/passwd", "passwd"); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := env.svc.ResolveDownload("uploads/output/none.pdf", "x"); !errors.Is(err, ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})
}

func TestListConversions(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.HistoryLimit = 2
	owner := int64(3)

	for i, uid := range []*int64{nil, &owner, &owner} {
		_, err := env.svc.ConvertImages(context.Background(),
			[]Upload{pngUpload(t, "img.png", 4+i, 4)},
			converter.ImageConvertOptions{OutputFormat: converter.FormatPNG}, uid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	all, err := env.svc.ListConversions(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected history limit of 2, got %d", len(all))
	}
	if all[0].ID != 3 || all[1].ID != 2 {
		t.Errorf("expected newest first, got ids %d, %d", all[0].ID, all[1].ID)
	}
	if all[0].ConversionType != "IMAGE_CONVERT" {
		t.Errorf("unexpected type %s", all[0].ConversionType)
	}

	other := int64(99)
	none, err := env.svc.ListConversions(context.Background(), &other)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no records for other owner, got %d", len(none))
	}
}

func TestDeleteConversion(t *testing.T) {
	t.Run("removes record and file", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.svc.ConvertImages(context.Background(),
			[]Upload{pngUpload(t, "a.png", 4, 4)},
			converter.ImageConvertOptions{OutputFormat: converter.FormatGIF}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := env.svc.DeleteConversion(context.Background(), res.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, ok := env.repo.records[res.ID]; ok {
			t.Error("expected record to be deleted")
		}
		if _, err := os.Stat(res.OutputPath); !os.IsNotExist(err) {
			t.Error("expected output file to be deleted")
		}
		last := env.events.events[len(env.events.events)-1]
		if last.Type != EventConversionDeleted || last.ID != res.ID {
			t.Errorf("expected deleted event, got %+v", last)
		}
	})

	t.Run("file already gone is not an error", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.records[1] = &database.Conversion{ID: 1, OutputPath: filepath.Join(env.store.OutputDir(), "gone.pdf")}
		env.repo.nextID = 1

		if err := env.svc.DeleteConversion(context.Background(), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.svc.DeleteConversion(context.Background(), 42); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	env.repo.records[1] = &database.Conversion{ID: 1, ConversionType: database.TypePDFMerge, Filesize: 100}
	env.repo.records[2] = &database.Conversion{ID: 2, ConversionType: database.TypePDFMerge, Filesize: 50}

	stats, err := env.svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalConversions != 2 || stats.ByType[database.TypePDFMerge] != 2 || stats.StorageUsed != 150 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
