package converter

import "github.com/go-playground/validator/v10"

// DefaultQuality is used when a request leaves quality unset.
const DefaultQuality = 90

type PageSize string

const (
	PageSizeOriginal PageSize = "original"
	PageSizeA4       PageSize = "a4"
	PageSizeLetter   PageSize = "letter"
	PageSizeLegal    PageSize = "legal"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Format is an image output format. Its value doubles as the file extension.
type Format string

const (
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatGIF  Format = "gif"
)

// MergeOptions configures MergePDFs. PageSize and AddBookmarks are accepted
// and recorded but do not change the merged document.
type MergeOptions struct {
	OutputFilename string   `json:"outputFilename" validate:"required"`
	PageSize       PageSize `json:"pageSize,omitempty" validate:"omitempty,oneof=original a4 letter legal"`
	AddBookmarks   bool     `json:"addBookmarks,omitempty"`
}

// ImageToPDFOptions configures ImagesToPDF. ImageQuality is accepted but inert.
type ImageToPDFOptions struct {
	OutputFilename  string      `json:"outputFilename" validate:"required"`
	PageSize        PageSize    `json:"pageSize,omitempty" validate:"omitempty,oneof=original a4 letter legal"`
	PageOrientation Orientation `json:"pageOrientation,omitempty" validate:"omitempty,oneof=portrait landscape"`
	ImageQuality    int         `json:"imageQuality,omitempty" validate:"omitempty,min=1,max=100"`
}

// PDFToImageOptions configures PDFToImages. DPI is accepted but inert.
type PDFToImageOptions struct {
	OutputFormat Format `json:"outputFormat" validate:"required,oneof=jpg png webp"`
	ImageQuality int    `json:"imageQuality,omitempty" validate:"omitempty,min=1,max=100"`
	DPI          int    `json:"dpi,omitempty" validate:"omitempty,min=72,max=600"`
}

// ImageConvertOptions configures ConvertImages.
type ImageConvertOptions struct {
	OutputFormat        Format `json:"outputFormat" validate:"required,oneof=jpg png webp gif"`
	Quality             int    `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
	Width               int    `json:"width,omitempty" validate:"omitempty,min=1"`
	Height              int    `json:"height,omitempty" validate:"omitempty,min=1"`
	MaintainAspectRatio bool   `json:"maintainAspectRatio,omitempty"`
}

func (o PDFToImageOptions) quality() int {
	return qualityOrDefault(o.ImageQuality)
}

func (o ImageConvertOptions) quality() int {
	return qualityOrDefault(o.Quality)
}

func qualityOrDefault(q int) int {
	if q <= 0 {
		return DefaultQuality
	}
	return q
}

var validate = validator.New()

// ValidateOptions checks an options struct against its validate tags.
func ValidateOptions(opts any) error {
	return validate.Struct(opts)
}
