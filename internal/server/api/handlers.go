package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"convertly/internal/converter"
	"convertly/internal/server/database"
	"convertly/internal/server/service"
)

// HealthChecker reports whether the record store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the conversion API.
type Handler struct {
	svc    *service.ConversionService
	health HealthChecker
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.ConversionService, health HealthChecker) *Handler {
	return &Handler{svc: svc, health: health}
}

// conversionResponse is the body returned by every conversion endpoint.
type conversionResponse struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Filesize    string `json:"filesize"`
	DownloadURL string `json:"downloadUrl"`
}

// historyQuery holds the optional filters of GET /api/conversions.
type historyQuery struct {
	UserID int64 `validate:"omitempty,min=1"`
}

// HandleMerge handles POST /api/pdf/merge.
// Accepts a multipart form with "files" (two or more PDFs) and "options".
func (h *Handler) HandleMerge(c echo.Context) error {
	var opts converter.MergeOptions
	return h.handleConversion(c, database.TypePDFMerge, "files", &opts,
		func(ctx context.Context, uploads []service.Upload, userID *int64) (*service.ConversionResult, error) {
			return h.svc.MergePDFs(ctx, uploads, opts, userID)
		})
}

// HandleImageToPDF handles POST /api/pdf/image-to-pdf.
func (h *Handler) HandleImageToPDF(c echo.Context) error {
	var opts converter.ImageToPDFOptions
	return h.handleConversion(c, database.TypeImageToPDF, "files", &opts,
		func(ctx context.Context, uploads []service.Upload, userID *int64) (*service.ConversionResult, error) {
			return h.svc.ImagesToPDF(ctx, uploads, opts, userID)
		})
}

// HandlePDFToImage handles POST /api/pdf/pdf-to-image.
// Accepts a single PDF in the "file" field.
func (h *Handler) HandlePDFToImage(c echo.Context) error {
	var opts converter.PDFToImageOptions
	return h.handleConversion(c, database.TypePDFToImage, "file", &opts,
		func(ctx context.Context, uploads []service.Upload, userID *int64) (*service.ConversionResult, error) {
			var upload *service.Upload
			if len(uploads) > 0 {
				upload = &uploads[0]
			}
			return h.svc.PDFToImages(ctx, upload, opts, userID)
		})
}

// HandleImageConvert handles POST /api/images/convert.
func (h *Handler) HandleImageConvert(c echo.Context) error {
	var opts converter.ImageConvertOptions
	return h.handleConversion(c, database.TypeImageConvert, "files", &opts,
		func(ctx context.Context, uploads []service.Upload, userID *int64) (*service.ConversionResult, error) {
			return h.svc.ConvertImages(ctx, uploads, opts, userID)
		})
}

type convertFunc func(ctx context.Context, uploads []service.Upload, userID *int64) (*service.ConversionResult, error)

// handleConversion reads the multipart request, decodes the options JSON
// into opts and hands the files to convert. The file count is checked
// before the options so a request missing both reports the files.
func (h *Handler) handleConversion(c echo.Context, kind database.ConversionType, field string, opts any, convert convertFunc) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart form data is required",
		})
	}

	headers := formFiles(form, field)
	if err := service.CheckUploadCount(kind, len(headers)); err != nil {
		return mapServiceError(c, err, "")
	}

	if err := decodeOptions(c.FormValue("options"), opts); err != nil {
		return mapServiceError(c, service.ErrInvalidOptions, "")
	}

	userID, err := optionalID(c.FormValue("userId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid user ID"})
	}

	uploads, closeAll, err := openUploads(headers)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer closeAll()

	result, err := convert(c.Request().Context(), uploads, userID)
	if err != nil {
		return mapServiceError(c, err, "")
	}

	return c.JSON(http.StatusOK, conversionResponse{
		ID:          result.ID,
		Filename:    result.Filename,
		Filesize:    formatMB(result.Size),
		DownloadURL: result.DownloadURL,
	})
}

// HandleDownload handles GET /api/download?path=&filename=.
// Serves the file as an attachment.
func (h *Handler) HandleDownload(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request parameters"})
	}

	filePath, filename, err := h.svc.ResolveDownload(path, c.QueryParam("filename"))
	if err != nil {
		return mapServiceError(c, err, "")
	}

	return c.Attachment(filePath, filename)
}

// HandleListConversions handles GET /api/conversions.
// Returns the most recent conversions, optionally for one user.
func (h *Handler) HandleListConversions(c echo.Context) error {
	var q historyQuery
	if raw := c.QueryParam("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid user ID"})
		}
		q.UserID = id
	}
	if err := c.Validate(&q); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid user ID"})
	}

	var userID *int64
	if q.UserID > 0 {
		userID = &q.UserID
	}

	conversions, err := h.svc.ListConversions(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err, "Failed to fetch conversion history")
	}

	return c.JSON(http.StatusOK, conversions)
}

// HandleDeleteConversion handles DELETE /api/conversions/:id.
func (h *Handler) HandleDeleteConversion(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid conversion ID"})
	}

	if err := h.svc.DeleteConversion(c.Request().Context(), id); err != nil {
		return mapServiceError(c, err, "Failed to delete conversion")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.health.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate conversion statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_conversions":  stats.TotalConversions,
		"by_type":            stats.ByType,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP
// responses. fallback replaces the generic 500 message when set.
func mapServiceError(c echo.Context, err error, fallback string) error {
	var inputErr *service.InputError
	var failure *service.ConversionFailure

	switch {
	case errors.As(err, &inputErr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": inputErr.Message})
	case errors.Is(err, service.ErrInvalidOptions):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid options format"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "File exceeds maximum allowed size",
		})
	case errors.As(err, &failure):
		slog.Error("conversion request failed", "type", failure.Type, "error", failure.Err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": failure.Message()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Access denied"})
	case errors.Is(err, service.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "File not found"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Conversion not found"})
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		if fallback == "" {
			fallback = "Internal server error"
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": fallback})
	}
}

// --- Helpers ---

// formFiles collects the files sent under field, accepting the
// "field[]" spelling some clients use.
func formFiles(form *multipart.Form, field string) []*multipart.FileHeader {
	var headers []*multipart.FileHeader
	headers = append(headers, form.File[field]...)
	headers = append(headers, form.File[field+"[]"]...)
	return headers
}

func decodeOptions(raw string, dst any) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("options are required")
	}
	return json.Unmarshal([]byte(raw), dst)
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, fmt.Errorf("invalid id %q", raw)
	}
	return &id, nil
}

func openUploads(headers []*multipart.FileHeader) ([]service.Upload, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, src)
		uploads = append(uploads, service.Upload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Content:  src,
		})
	}
	return uploads, closeAll, nil
}

// formatMB renders a byte count the way conversion responses report it.
func formatMB(b int64) string {
	return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
